package http

import (
	"encoding/json"
	"log"
	"net/http"

	"hackathon-session-service/internal/app"
	"hackathon-session-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler wires browsing contexts into the session core: one connection is
// one view shell, with its own progress tracker and notification queue.
type WSHandler struct {
	state    *app.SessionState
	progress app.ProgressStore
	catalog  app.CatalogRepository
	cfg      app.TrackerConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(state *app.SessionState, progress app.ProgressStore, catalog app.CatalogRepository, cfg app.TrackerConfig) *WSHandler {
	return &WSHandler{
		state:    state,
		progress: progress,
		catalog:  catalog,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type viewPayload struct {
	View   app.View   `json:"view"`
	Screen app.Screen `json:"screen"`
}

type registerPayload struct {
	Name   string `json:"name"`
	TeamID string `json:"teamId"`
}

type navigatePayload struct {
	View string `json:"view"`
}

type answerPayload struct {
	Level  int    `json:"level"`
	Answer string `json:"answer"`
}

type hintPayload struct {
	Level int `json:"level"`
}

type practicePayload struct {
	ItemID    int            `json:"itemId"`
	Completed *bool          `json:"completed,omitempty"`
	Score     *float64       `json:"score,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type completeLevelPayload struct {
	Level     int     `json:"level"`
	Score     float64 `json:"score"`
	TimeSpent int     `json:"timeSpent"`
}

type dismissPayload struct {
	ID int64 `json:"id"`
}

type progressPayload struct {
	TotalScore float64                  `json:"totalScore"`
	Practice   app.Completion           `json:"practice"`
	Hackathon  app.LevelCompletion      `json:"hackathon"`
	Record     domain.HackathonProgress `json:"record"`
}

// ServeWS upgrades the request and runs the view-shell protocol for one
// browsing context.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	role := domain.Role(r.URL.Query().Get("role"))
	requestedView := r.URL.Query().Get("view")
	if userID == "" || (role != domain.RoleInstructor && role != domain.RoleStudent) {
		http.Error(w, "missing userId or role", http.StatusBadRequest)
		return
	}
	user := domain.User{ID: userID, Role: role}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	queue := app.NewNotificationQueue()
	tracker := app.NewProgressTracker(h.progress, h.cfg, queue)
	tracker.Load(r.Context(), userID)

	view := h.state.ResolveView(user, requestedView)
	if view == app.ViewStudent {
		h.state.EnterStudentView(r.Context(), userID)
	}

	updates, cancel := h.state.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "session", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "view", Payload: viewPayload{View: view, Screen: h.state.Screen()}}
	if catalog, err := h.catalog.GetCatalog(r.Context()); err == nil {
		send <- outboundMessage[any]{Type: "catalog", Payload: catalog}
	}
	send <- outboundMessage[any]{Type: "progress", Payload: h.progressSnapshot(tracker)}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "navigate":
			var payload navigatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid navigate payload")
				continue
			}
			view = h.state.ResolveView(user, payload.View)
			if view == app.ViewStudent {
				h.state.EnterStudentView(r.Context(), userID)
			} else if view == app.ViewLanding {
				h.state.ReturnToLanding()
			}
			send <- outboundMessage[any]{Type: "view", Payload: viewPayload{View: view, Screen: h.state.Screen()}}

		case "register":
			var payload registerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid register payload")
				continue
			}
			err := h.state.RegisterStudent(r.Context(), domain.RegisteredStudent{
				ID:     userID,
				Name:   payload.Name,
				TeamID: payload.TeamID,
			})
			if err != nil {
				send <- errorMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "view", Payload: viewPayload{View: view, Screen: h.state.Screen()}}

		case "startSession":
			if user.Role != domain.RoleInstructor {
				send <- errorMsg("only the instructor can start the session")
				continue
			}
			h.state.Start()

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid answer payload")
				continue
			}
			h.state.RecordAnswer(r.Context(), payload.Level, payload.Answer)

		case "useHint":
			var payload hintPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid hint payload")
				continue
			}
			h.state.RecordHint(r.Context(), payload.Level)

		case "practice":
			var payload practicePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid practice payload")
				continue
			}
			tracker.UpdatePractice(r.Context(), payload.ItemID, app.PracticeUpdate{
				Completed: payload.Completed,
				Score:     payload.Score,
				Fields:    payload.Fields,
			})
			send <- outboundMessage[any]{Type: "progress", Payload: h.progressSnapshot(tracker)}
			send <- notificationsMsg(queue)

		case "completeLevel":
			var payload completeLevelPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid completeLevel payload")
				continue
			}
			// CompleteLevel double-counts on repeats; gate here.
			if tracker.LevelCompleted(payload.Level) {
				send <- errorMsg("level already completed")
				continue
			}
			if tracker.CompleteLevel(r.Context(), payload.Level, payload.Score, payload.TimeSpent) {
				if snap := h.state.Snapshot(); snap.RegisteredStudent != nil {
					if err := h.state.ApplyTeamScore(r.Context(), snap.RegisteredStudent.TeamID, payload.Score, payload.Level); err != nil {
						log.Printf("apply team score: %v", err)
					}
				}
			}
			send <- outboundMessage[any]{Type: "progress", Payload: h.progressSnapshot(tracker)}
			send <- notificationsMsg(queue)

		case "dismissNotification":
			var payload dismissPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid dismiss payload")
				continue
			}
			queue.Remove(payload.ID)
			send <- notificationsMsg(queue)

		default:
			send <- errorMsg("unsupported message type")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) progressSnapshot(tracker *app.ProgressTracker) progressPayload {
	return progressPayload{
		TotalScore: tracker.TotalScore(),
		Practice:   tracker.PracticeCompletion(),
		Hackathon:  tracker.HackathonCompletion(),
		Record:     tracker.HackathonProgress(),
	}
}

func errorMsg(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}

func notificationsMsg(queue *app.NotificationQueue) outboundMessage[any] {
	return outboundMessage[any]{Type: "notifications", Payload: queue.Notifications()}
}
