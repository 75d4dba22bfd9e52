package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"vibe-drinks/models"
	"vibe-drinks/realtime"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// Sender is the slice of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Lookup loads the details a chat message shows beyond the event payload.
type Lookup interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetMotoboy(ctx context.Context, id string) (*models.Motoboy, error)
}

// Notifier is a broadcaster subscriber that forwards order events to the
// operator Telegram chat. Send only queues; Run does the network calls.
type Notifier struct {
	api    Sender
	chatID int64
	lookup Lookup
	log    *slog.Logger

	frames chan realtime.Frame
	done   chan struct{}
	once   sync.Once
}

func NewNotifier(api Sender, chatID int64, lookup Lookup, log *slog.Logger, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &Notifier{
		api:    api,
		chatID: chatID,
		lookup: lookup,
		log:    log,
		frames: make(chan realtime.Frame, buffer),
		done:   make(chan struct{}),
	}
}

// NewBotAPI connects to Telegram with the operator bot token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return api, nil
}

func (n *Notifier) Send(f realtime.Frame) error {
	select {
	case <-n.done:
		return realtime.ErrChannelClosed
	default:
	}
	switch f.Event {
	case realtime.EventConnected, realtime.EventHeartbeat:
		return nil
	}
	select {
	case n.frames <- f:
		return nil
	default:
		return realtime.ErrChannelFull
	}
}

func (n *Notifier) Close() {
	n.once.Do(func() { close(n.done) })
}

// Run delivers queued events until ctx ends or the notifier is closed.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case f := <-n.frames:
			text, ok := n.render(ctx, f)
			if !ok {
				continue
			}
			msg := tgbotapi.NewMessage(n.chatID, text)
			if _, err := n.api.Send(msg); err != nil {
				n.log.Warn("telegram send failed", "event", f.Event, "error", err)
			}
		}
	}
}

func (n *Notifier) render(ctx context.Context, f realtime.Frame) (string, bool) {
	switch f.Event {
	case realtime.EventOrderCreated:
		var p realtime.OrderCreatedPayload
		if err := f.Decode(&p); err != nil {
			break
		}
		o, err := n.lookup.GetOrder(ctx, p.OrderID)
		if err != nil {
			n.log.Debug("order lookup failed", "orderID", p.OrderID, "error", err)
			return fmt.Sprintf("🆕 Novo pedido #%s (%s)", shortID(p.OrderID), statusLabel(p.Status)), true
		}
		return orderCard(o), true

	case realtime.EventOrderStatusChanged:
		var p realtime.OrderStatusChangedPayload
		if err := f.Decode(&p); err != nil {
			break
		}
		return fmt.Sprintf("Pedido #%s: %s → %s", shortID(p.OrderID), statusLabel(p.PreviousStatus), statusLabel(p.Status)), true

	case realtime.EventOrderAssigned:
		var p realtime.OrderAssignedPayload
		if err := f.Decode(&p); err != nil {
			break
		}
		name := shortID(p.MotoboyID)
		if m, err := n.lookup.GetMotoboy(ctx, p.MotoboyID); err == nil {
			name = m.Name
		}
		return fmt.Sprintf("🛵 Pedido #%s saiu com %s", shortID(p.OrderID), name), true

	case realtime.EventOrderUpdated:
		var p realtime.OrderUpdatedPayload
		if err := f.Decode(&p); err != nil {
			break
		}
		o, err := n.lookup.GetOrder(ctx, p.OrderID)
		if err != nil || o.OriginalDeliveryFee == nil {
			return fmt.Sprintf("✏️ Pedido #%s atualizado", shortID(p.OrderID)), true
		}
		return fmt.Sprintf("✏️ Pedido #%s: taxa de entrega %s → %s, total %s",
			shortID(o.ID), brl(*o.OriginalDeliveryFee), brl(o.DeliveryFee), brl(o.Total)), true

	default:
		return "", false
	}
	n.log.Warn("undecodable event", "event", f.Event)
	return "", false
}

func orderCard(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 Novo pedido #%s\n", shortID(o.ID))
	if o.OrderType == models.OrderTypeDelivery {
		b.WriteString("Tipo: entrega")
		if o.DeliveryDistance != nil {
			fmt.Fprintf(&b, " (%.1f km)", *o.DeliveryDistance)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Tipo: balcão\n")
	}
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%dx %s\n", it.Quantity, it.ProductName)
	}
	fmt.Fprintf(&b, "Total: %s\n", brl(o.Total))
	fmt.Fprintf(&b, "Pagamento: %s", o.PaymentMethod)
	if o.ChangeFor != nil {
		fmt.Fprintf(&b, " (troco para %s)", brl(*o.ChangeFor))
	}
	fmt.Fprintf(&b, "\nStatus: %s", statusLabel(o.Status))
	return b.String()
}

func statusLabel(s models.OrderStatus) string {
	switch s {
	case models.StatusPending:
		return "Pendente"
	case models.StatusAccepted:
		return "Aceito"
	case models.StatusPreparing:
		return "Em preparo"
	case models.StatusReady:
		return "Pronto"
	case models.StatusDispatched:
		return "Saiu para entrega"
	case models.StatusDelivered:
		return "Entregue"
	case models.StatusCancelled:
		return "Cancelado"
	default:
		return string(s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func brl(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}
