// Package customers manages customer records and their embedded ledger:
// animal line items, payment transactions and the discount audit trail.
// Every mutation reloads the record, rederives all ledger fields and writes
// the whole record back.
package customers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/domain/discount"
	"github.com/mamadbah2/herdbook/internal/domain/ledger"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/metrics"
	"github.com/mamadbah2/herdbook/internal/repository/store"
)

var (
	// ErrCustomerNotFound indicates the customer does not exist for the actor.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrAnimalNotFound indicates the animal is not attached to the customer.
	ErrAnimalNotFound = errors.New("animal not found")
	// ErrPaymentNotFound indicates the payment is not embedded in the customer.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicateAnimal indicates an animal whose composite key is already sold.
	ErrDuplicateAnimal = errors.New("animal already registered")
	// ErrNameRequired indicates a customer without a name.
	ErrNameRequired = errors.New("customer name is required")
)

// Registry is the duplicate-detection index of sold animals.
type Registry interface {
	AddOrUpdate(ctx context.Context, customerID string, animal models.Animal) error
	Remove(ctx context.Context, customerID, compositeKey string) error
	CheckDuplicate(ctx context.Context, compositeKey, customerID, excludeAnimalID string) (bool, error)
}

// Service implements the customer record operations.
type Service struct {
	store    store.Store
	registry Registry
	monitor  *metrics.Monitor
	logger   *zap.Logger
	now      func() time.Time
	newID    ledger.IDFunc
}

// NewService wires the customer service. monitor may be nil.
func NewService(s store.Store, registry Registry, monitor *metrics.Monitor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    s,
		registry: registry,
		monitor:  monitor,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    ledger.NewID,
	}
}

// AddCustomer creates a customer from in and returns its id.
func (s *Service) AddCustomer(ctx context.Context, in models.NewCustomer) (string, error) {
	defer s.monitor.StartMeasurement("customers.add")()

	collection, err := store.ActorPath(ctx, store.CollectionCustomers)
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", ErrNameRequired
	}

	now := s.now()
	animals, total, err := ledger.BuildAnimals(in.Animals, s.newID, now)
	if err != nil {
		return "", err
	}
	payments, err := ledger.BuildPayments(in.Payments, s.newID, now)
	if err != nil {
		return "", err
	}
	if err := s.checkDuplicates(ctx, "", nil, animals); err != nil {
		return "", err
	}

	customer := models.Customer{
		Name:      name,
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		Notes:     in.Notes,
		Animals:   animals,
		Payments:  payments,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Discount != 0 {
		app, err := s.validatedDiscount(in.Discount, total, in.DiscountReason, in.DiscountAppliedBy, now)
		if err != nil {
			return "", err
		}
		ledger.ApplyDiscount(&customer, app)
	}
	ledger.Recompute(&customer)

	id, err := s.store.Push(ctx, collection, customer)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := s.syncRegistry(ctx, id, nil, customer.Animals); err != nil {
		return "", err
	}

	s.logger.Info("customer created", zap.String("customer_id", id), zap.Int("animals", len(animals)), zap.Float64("balance", customer.Balance))
	return id, nil
}

// UpdateCustomer merges upd into the stored customer. Non-nil animal or
// payment lists replace the stored ones; the discount is kept unless
// upd.Discount is set.
func (s *Service) UpdateCustomer(ctx context.Context, upd models.CustomerUpdate) (models.Customer, error) {
	return s.mutate(ctx, "customers.update", upd.ID, func(c *models.Customer) error {
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return ErrNameRequired
			}
			c.Name = name
		}
		if upd.Phone != nil {
			c.Phone = strings.TrimSpace(*upd.Phone)
		}
		if upd.Address != nil {
			c.Address = strings.TrimSpace(*upd.Address)
		}
		if upd.Notes != nil {
			c.Notes = *upd.Notes
		}

		now := s.now()
		if upd.Animals != nil {
			animals, _, err := ledger.BuildAnimals(upd.Animals, s.newID, now)
			if err != nil {
				return err
			}
			c.Animals = keepCreatedAt(c.Animals, animals)
		}
		if upd.Payments != nil {
			payments, err := ledger.BuildPayments(upd.Payments, s.newID, now)
			if err != nil {
				return err
			}
			c.Payments = payments
		}
		if upd.Discount != nil {
			app, err := s.validatedDiscount(*upd.Discount, ledger.AnimalsTotal(c.Animals), upd.DiscountReason, upd.DiscountAppliedBy, now)
			if err != nil {
				return err
			}
			ledger.ApplyDiscount(c, app)
		}
		return nil
	})
}

// DeleteCustomer removes the customer and its animals from the registry.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	defer s.monitor.StartMeasurement("customers.delete")()

	customer, path, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	if err := s.syncRegistry(ctx, id, customer.Animals, nil); err != nil {
		return err
	}

	s.logger.Info("customer deleted", zap.String("customer_id", id))
	return nil
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id string) (models.Customer, error) {
	customer, _, err := s.load(ctx, id)
	return customer, err
}

// ListCustomers returns every customer of the actor in creation order.
func (s *Service) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	defer s.monitor.StartMeasurement("customers.list")()

	collection, err := store.ActorPath(ctx, store.CollectionCustomers)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return decodeCustomers(snap)
}

// SearchCustomers matches query case-insensitively against name and phone.
// An empty query returns every customer.
func (s *Service) SearchCustomers(ctx context.Context, query string) ([]models.Customer, error) {
	all, err := s.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all, nil
	}

	matches := make([]models.Customer, 0, len(all))
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), query) || strings.Contains(strings.ToLower(c.Phone), query) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// SubscribeCustomers delivers the full customer list now and after every
// change until the subscription is cancelled.
func (s *Service) SubscribeCustomers(ctx context.Context, fn func([]models.Customer, error)) (store.Subscription, error) {
	collection, err := store.ActorPath(ctx, store.CollectionCustomers)
	if err != nil {
		return nil, err
	}
	return s.store.Subscribe(ctx, collection, func(snap store.Snapshot) {
		fn(decodeCustomers(snap))
	})
}

// ApplyCustomerDiscount sets the customer's discount with its audit trail.
// The discount may not exceed the current total amount.
func (s *Service) ApplyCustomerDiscount(ctx context.Context, id string, req models.DiscountRequest) (models.Customer, error) {
	return s.mutate(ctx, "customers.apply_discount", id, func(c *models.Customer) error {
		app, err := s.validatedDiscount(req.Discount, c.TotalAmount, req.Reason, req.AppliedBy, s.now())
		if err != nil {
			return err
		}
		ledger.ApplyDiscount(c, app)
		return nil
	})
}

// RemoveCustomerDiscount zeroes the customer's discount and records why.
func (s *Service) RemoveCustomerDiscount(ctx context.Context, id, reason, removedBy string) (models.Customer, error) {
	return s.mutate(ctx, "customers.remove_discount", id, func(c *models.Customer) error {
		app, err := discount.RemoveAt(reason, removedBy, s.now())
		if err != nil {
			return err
		}
		ledger.ApplyDiscount(c, app)
		return nil
	})
}

// AddAnimalToCustomer appends a new animal to the customer.
func (s *Service) AddAnimalToCustomer(ctx context.Context, customerID string, in models.AnimalInput) (models.Animal, error) {
	var added models.Animal
	_, err := s.mutate(ctx, "customers.add_animal", customerID, func(c *models.Customer) error {
		animal, err := ledger.BuildAnimal(in, s.newID, s.now())
		if err != nil {
			return err
		}
		if _, ok := findAnimal(c.Animals, animal.ID); ok {
			return fmt.Errorf("%w: id %s", ErrDuplicateAnimal, animal.ID)
		}
		c.Animals = append(c.Animals, animal)
		added = animal
		return nil
	})
	return added, err
}

// UpdateCustomerAnimal merges upd into one animal. Like every other
// mutation it rejects moving an animal that is not alive to cancelled.
func (s *Service) UpdateCustomerAnimal(ctx context.Context, customerID, animalID string, upd models.AnimalUpdate) (models.Animal, error) {
	return s.updateAnimal(ctx, "customers.update_animal", customerID, animalID, upd)
}

// UpdateAnimalDetails merges upd into one animal. Moving an animal to
// cancelled is only allowed while it is alive.
func (s *Service) UpdateAnimalDetails(ctx context.Context, customerID, animalID string, upd models.AnimalUpdate) (models.Animal, error) {
	return s.updateAnimal(ctx, "customers.update_animal_details", customerID, animalID, upd)
}

func (s *Service) updateAnimal(ctx context.Context, op, customerID, animalID string, upd models.AnimalUpdate) (models.Animal, error) {
	var updated models.Animal
	_, err := s.mutate(ctx, op, customerID, func(c *models.Customer) error {
		idx, ok := findAnimal(c.Animals, animalID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAnimalNotFound, animalID)
		}
		animal, err := ledger.ApplyAnimalUpdate(c.Animals[idx], upd)
		if err != nil {
			return err
		}
		c.Animals[idx] = animal
		updated = animal
		return nil
	})
	return updated, err
}

// RemoveAnimalFromCustomer detaches one animal.
func (s *Service) RemoveAnimalFromCustomer(ctx context.Context, customerID, animalID string) error {
	_, err := s.mutate(ctx, "customers.remove_animal", customerID, func(c *models.Customer) error {
		idx, ok := findAnimal(c.Animals, animalID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAnimalNotFound, animalID)
		}
		c.Animals = append(c.Animals[:idx:idx], c.Animals[idx+1:]...)
		return nil
	})
	return err
}

// BulkUpdateCustomerAnimals replaces the customer's animal list.
func (s *Service) BulkUpdateCustomerAnimals(ctx context.Context, customerID string, inputs []models.AnimalInput) (models.Customer, error) {
	return s.mutate(ctx, "customers.bulk_update_animals", customerID, func(c *models.Customer) error {
		animals, _, err := ledger.BuildAnimals(inputs, s.newID, s.now())
		if err != nil {
			return err
		}
		c.Animals = keepCreatedAt(c.Animals, animals)
		return nil
	})
}

// AddCustomerPayment appends a payment transaction to the customer.
func (s *Service) AddCustomerPayment(ctx context.Context, customerID string, in models.PaymentDetailInput) (models.PaymentDetail, error) {
	var added models.PaymentDetail
	_, err := s.mutate(ctx, "customers.add_payment", customerID, func(c *models.Customer) error {
		detail, err := ledger.BuildPaymentDetail(in, s.newID, s.now())
		if err != nil {
			return err
		}
		c.Payments = append(c.Payments, detail)
		added = detail
		return nil
	})
	return added, err
}

// RemoveCustomerPayment drops one payment transaction from the customer.
func (s *Service) RemoveCustomerPayment(ctx context.Context, customerID, paymentID string) error {
	_, err := s.mutate(ctx, "customers.remove_payment", customerID, func(c *models.Customer) error {
		for i, p := range c.Payments {
			if p.ID == paymentID {
				c.Payments = append(c.Payments[:i:i], c.Payments[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	})
	return err
}

// mutate loads the customer, applies fn, rederives the ledger and writes the
// record back. Nothing is written when fn fails.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(*models.Customer) error) (models.Customer, error) {
	defer s.monitor.StartMeasurement(op)()

	customer, path, err := s.load(ctx, id)
	if err != nil {
		return models.Customer{}, err
	}
	before := append([]models.Animal(nil), customer.Animals...)

	if err := fn(&customer); err != nil {
		return models.Customer{}, err
	}
	if err := checkTransitions(before, customer.Animals); err != nil {
		return models.Customer{}, err
	}
	if err := s.checkDuplicates(ctx, id, before, customer.Animals); err != nil {
		return models.Customer{}, err
	}

	ledger.Recompute(&customer)
	customer.UpdatedAt = s.now()

	if err := s.store.Set(ctx, path, customer); err != nil {
		return models.Customer{}, fmt.Errorf("save customer %s: %w", id, err)
	}
	if err := s.syncRegistry(ctx, id, before, customer.Animals); err != nil {
		return models.Customer{}, err
	}

	s.logger.Debug("customer updated", zap.String("op", op), zap.String("customer_id", id), zap.Float64("balance", customer.Balance))
	return customer, nil
}

func (s *Service) load(ctx context.Context, id string) (models.Customer, string, error) {
	if strings.TrimSpace(id) == "" {
		return models.Customer{}, "", ErrCustomerNotFound
	}
	path, err := store.ActorPath(ctx, store.CollectionCustomers, id)
	if err != nil {
		return models.Customer{}, "", err
	}

	var customer models.Customer
	if err := s.store.Get(ctx, path, &customer); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Customer{}, "", fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
		}
		return models.Customer{}, "", fmt.Errorf("load customer %s: %w", id, err)
	}
	customer.ID = id
	normalize(&customer)
	return customer, path, nil
}

func (s *Service) validatedDiscount(amount, total float64, reason, appliedBy string, at time.Time) (discount.Application, error) {
	if err := discount.Validate(amount, total); err != nil {
		return discount.Application{}, err
	}
	return discount.ApplyAt(amount, reason, appliedBy, at)
}

// checkTransitions applies the status guard to every animal that keeps its id.
func checkTransitions(before, after []models.Animal) error {
	previous := make(map[string]models.AnimalStatus, len(before))
	for _, a := range before {
		previous[a.ID] = a.Status
	}
	for _, a := range after {
		from, ok := previous[a.ID]
		if !ok || from == a.Status {
			continue
		}
		if err := ledger.CheckStatusTransition(from, a.Status); err != nil {
			return fmt.Errorf("animal %s: %w", a.ID, err)
		}
	}
	return nil
}

// checkDuplicates rejects composite keys repeated within animals and keys the
// customer did not already hold that are registered to anyone else. An empty
// customerID stands for a customer that is not stored yet.
func (s *Service) checkDuplicates(ctx context.Context, customerID string, before, animals []models.Animal) error {
	held := make(map[string]struct{}, len(before))
	for _, a := range before {
		held[a.CompositeKey] = struct{}{}
	}
	counts := make(map[string]int, len(animals))
	for _, a := range animals {
		counts[a.CompositeKey]++
	}

	for _, a := range animals {
		if counts[a.CompositeKey] > 1 {
			return fmt.Errorf("%w: %s", ErrDuplicateAnimal, a.CompositeKey)
		}
		if _, ok := held[a.CompositeKey]; ok || s.registry == nil {
			continue
		}
		dup, err := s.registry.CheckDuplicate(ctx, a.CompositeKey, customerID, a.ID)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAnimal, a.CompositeKey)
		}
	}
	return nil
}

// syncRegistry releases the keys customerID no longer holds and registers the
// rest. The registry leaves entries owned by other customers untouched.
func (s *Service) syncRegistry(ctx context.Context, customerID string, before, after []models.Animal) error {
	if s.registry == nil {
		return nil
	}

	current := make(map[string]struct{}, len(after))
	for _, a := range after {
		current[a.CompositeKey] = struct{}{}
	}
	for _, a := range before {
		if _, ok := current[a.CompositeKey]; ok {
			continue
		}
		if err := s.registry.Remove(ctx, customerID, a.CompositeKey); err != nil {
			return err
		}
	}
	for _, a := range after {
		if err := s.registry.AddOrUpdate(ctx, customerID, a); err != nil {
			return err
		}
	}
	return nil
}

func decodeCustomers(snap store.Snapshot) ([]models.Customer, error) {
	customers, err := store.DecodeAll(snap, func(c *models.Customer, key string) {
		c.ID = key
		normalize(c)
	})
	if err != nil {
		return nil, fmt.Errorf("decode customers: %w", err)
	}
	sort.SliceStable(customers, func(i, j int) bool {
		return customers[i].CreatedAt.Before(customers[j].CreatedAt)
	})
	return customers, nil
}

func normalize(c *models.Customer) {
	if c.Animals == nil {
		c.Animals = []models.Animal{}
	}
	if c.Payments == nil {
		c.Payments = []models.PaymentDetail{}
	}
}

func findAnimal(animals []models.Animal, id string) (int, bool) {
	for i, a := range animals {
		if a.ID == id {
			return i, true
		}
	}
	return -1, false
}

// keepCreatedAt carries the creation time of animals that keep their id.
func keepCreatedAt(previous, replacement []models.Animal) []models.Animal {
	created := make(map[string]time.Time, len(previous))
	for _, a := range previous {
		created[a.ID] = a.CreatedAt
	}
	for i := range replacement {
		if at, ok := created[replacement[i].ID]; ok && !at.IsZero() {
			replacement[i].CreatedAt = at
		}
	}
	return replacement
}
