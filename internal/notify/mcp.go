package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier mirrors task events to connected MCP clients as
// notifications/message log entries.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time // task id + event type → last send
}

// NewMCPNotifier creates an MCPNotifier. Repeats of the same event type for
// the same task inside the debounce interval are dropped.
func NewMCPNotifier(sender MCPSender, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event Event) {
	if n.debounced(event) {
		return
	}

	params := map[string]any{
		"level":  mcpLevel(event.Severity),
		"logger": "crier",
		"data": map[string]any{
			"type":    event.Type,
			"task_id": event.TaskID,
			"user_id": event.UserID,
			"message": event.Message,
		},
	}
	n.sender.SendNotificationToAllClients("notifications/message", params)
}

func (n *MCPNotifier) debounced(event Event) bool {
	key := fmt.Sprintf("%d/%s", event.TaskID, event.Type)
	now := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.debounce {
		slog.Debug("mcp notification debounced", "task_id", event.TaskID, "type", event.Type)
		return true
	}

	for k, t := range n.lastSent {
		if now.Sub(t) >= n.debounce {
			delete(n.lastSent, k)
		}
	}
	n.lastSent[key] = now
	return false
}

func mcpLevel(severity string) string {
	switch severity {
	case "error":
		return "error"
	case "success":
		return "notice"
	default:
		return "info"
	}
}
