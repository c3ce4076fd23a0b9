package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/service/reporting"
)

const maxListItems = 20

// ErrSenderNotAllowed indicates a command from a number that may not read the ledger.
var ErrSenderNotAllowed = errors.New("sender not allowed")

// HelpText lists the supported chat commands.
const HelpText = "Commands:\n/balance <name or phone> - customer balance\n/customers - open balances\n/report - today's summary\n/help - this message"

// CustomerFinder is the read side of the customer service used by commands.
type CustomerFinder interface {
	SearchCustomers(ctx context.Context, query string) ([]models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
}

// Dispatcher answers parsed chat commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface on top of one actor's ledger.
type Service struct {
	customers CustomerFinder
	actorID   string
	allowed   map[string]struct{}
	logger    *zap.Logger
	now       func() time.Time
}

// NewService constructs a command dispatcher answering allowedSenders with the
// ledger of actorID. An empty actorID disables ledger queries and an empty
// allowedSenders rejects every sender.
func NewService(customers CustomerFinder, actorID string, allowedSenders []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedSenders))
	for _, number := range allowedSenders {
		if n := normalizeNumber(number); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &Service{customers: customers, actorID: actorID, allowed: allowed, logger: logger, now: time.Now}
}

// HandleCommand routes the command to the appropriate handler and returns the
// reply. Senders outside the allow list get ErrSenderNotAllowed.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	if _, ok := s.allowed[normalizeNumber(sender)]; !ok {
		s.logger.Warn("command from unknown sender", zap.String("sender", sender), zap.String("command", string(cmd.Type)))
		return "", fmt.Errorf("%w: %s", ErrSenderNotAllowed, sender)
	}
	if cmd.Type == models.CommandHelp || cmd.Type == models.CommandUnknown {
		return HelpText, nil
	}
	if s.actorID == "" {
		return "Ledger queries are not configured for this number.", nil
	}

	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender))
	ctx = auth.WithActor(ctx, s.actorID)

	switch cmd.Type {
	case models.CommandBalance:
		return s.handleBalance(ctx, cmd.Query())
	case models.CommandCustomers:
		return s.handleCustomers(ctx)
	case models.CommandReport:
		return s.handleReport(ctx)
	default:
		return HelpText, nil
	}
}

func (s *Service) handleBalance(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "Usage: /balance <name or phone>", nil
	}
	matches, err := s.customers.SearchCustomers(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search customers: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No customer matches %q.", query), nil
	}
	return formatLines(matches), nil
}

func (s *Service) handleCustomers(ctx context.Context) (string, error) {
	all, err := s.customers.ListCustomers(ctx)
	if err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}
	open := make([]models.Customer, 0, len(all))
	for _, c := range all {
		if c.Balance > 0 {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return "No open balances.", nil
	}
	return formatLines(open), nil
}

func (s *Service) handleReport(ctx context.Context) (string, error) {
	all, err := s.customers.ListCustomers(ctx)
	if err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}
	return reporting.FormatBalanceReport(reporting.Summarize(all, s.now())), nil
}

func formatLines(customers []models.Customer) string {
	lines := make([]string, 0, len(customers)+1)
	for i, c := range customers {
		if i == maxListItems {
			lines = append(lines, fmt.Sprintf("... and %d more", len(customers)-maxListItems))
			break
		}
		lines = append(lines, reporting.FormatCustomerLine(c))
	}
	return strings.Join(lines, "\n")
}

// normalizeNumber keeps the digits of a phone number so "+972 50-111" and
// "97250111" compare equal.
func normalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
