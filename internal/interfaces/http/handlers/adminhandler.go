package handlers

import (
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/cellcore/internal/application/controller"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
	"github.com/orris-inc/cellcore/internal/shared/utils"
	"github.com/orris-inc/cellcore/internal/shared/version"
)

// Maximum accepted event payload (64KB)
const maxEventBodySize = 64 << 10

// SubscriberReader is the read side of the registry.
type SubscriberReader interface {
	Policy() registry.Policy
	Profiles() []*subscriber.Profile
	RegisteredList() []*subscriber.Registered
	Registered(imsi string) (*subscriber.Registered, bool)
	Rejections() map[string]int
}

type QueueReader interface {
	List() []*message.PendingMessage
}

type AlarmReader interface {
	List() []alarm.Alarm
}

// EventDecoder builds a bus event from a request body.
type EventDecoder func(eventType string, data []byte, now time.Time) (events.DomainEvent, error)

// AdminHandler serves the administrative surface. Reads go straight to the
// store; anything that changes state goes through the bus.
type AdminHandler struct {
	subscribers SubscriberReader
	queue       QueueReader
	alarms      AlarmReader
	bus         events.EventPublisher
	decode      EventDecoder
	logger      logger.Interface
}

func NewAdminHandler(
	subscribers SubscriberReader,
	queue QueueReader,
	alarms AlarmReader,
	bus events.EventPublisher,
	decode EventDecoder,
	logger logger.Interface,
) *AdminHandler {
	return &AdminHandler{
		subscribers: subscribers,
		queue:       queue,
		alarms:      alarms,
		bus:         bus,
		decode:      decode,
		logger:      logger,
	}
}

// Health reports liveness.
func (h *AdminHandler) Health(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", gin.H{"status": "ok"})
}

// GetStatus summarizes the policy and table sizes.
func (h *AdminHandler) GetStatus(c *gin.Context) {
	policy := h.subscribers.Policy()
	utils.SuccessResponse(c, http.StatusOK, "", StatusDTO{
		Policy:        string(policy.Mode),
		Patterns:      policy.PatternStrings(),
		Reason:        policy.Reason,
		Profiles:      len(h.subscribers.Profiles()),
		Registrations: len(h.subscribers.RegisteredList()),
		Pending:       len(h.queue.List()),
		Alarms:        len(h.alarms.List()),
		Build:         version.Get(),
	})
}

// ListSubscribers lists configured profiles joined with their registration.
func (h *AdminHandler) ListSubscribers(c *gin.Context) {
	profiles := h.subscribers.Profiles()
	items := make([]SubscriberDTO, 0, len(profiles))
	for _, p := range profiles {
		reg, _ := h.subscribers.Registered(p.IMSI)
		items = append(items, toSubscriberDTO(p, reg))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].IMSI < items[j].IMSI })
	p := utils.ParsePagination(c)
	utils.PaginatedResponse(c, utils.Paginate(items, p), len(items), p)
}

// ListRegistrations lists registered subscribers by identity.
func (h *AdminHandler) ListRegistrations(c *gin.Context) {
	regs := h.subscribers.RegisteredList()
	sort.Slice(regs, func(i, j int) bool { return regs[i].IMSI < regs[j].IMSI })
	p := utils.ParsePagination(c)
	utils.PaginatedResponse(c, utils.Paginate(regs, p), len(regs), p)
}

// GetRegistration returns one registration by identity.
func (h *AdminHandler) GetRegistration(c *gin.Context) {
	imsi, err := utils.ParseIMSIParam(c, "imsi")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	reg, ok := h.subscribers.Registered(imsi)
	if !ok {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("subscriber not registered", imsi))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", reg)
}

// ListMessages lists the store-and-forward queue.
func (h *AdminHandler) ListMessages(c *gin.Context) {
	msgs := h.queue.List()
	p := utils.ParsePagination(c)
	utils.PaginatedResponse(c, utils.Paginate(msgs, p), len(msgs), p)
}

// ListRejections lists rejected identities, most rejected first.
func (h *AdminHandler) ListRejections(c *gin.Context) {
	counts := h.subscribers.Rejections()
	items := make([]RejectionDTO, 0, len(counts))
	for imsi, n := range counts {
		items = append(items, RejectionDTO{IMSI: imsi, Count: n})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].IMSI < items[j].IMSI
	})
	utils.ListSuccessResponse(c, items, len(items))
}

func (h *AdminHandler) ListAlarms(c *gin.Context) {
	alarms := h.alarms.List()
	utils.ListSuccessResponse(c, alarms, len(alarms))
}

// Reload re-reads the configuration on the bus goroutine.
func (h *AdminHandler) Reload(c *gin.Context) {
	reply, err := h.bus.Dispatch(c.Request.Context(), controller.NewReloadEvent(biztime.NowUTC()))
	if err != nil {
		h.logger.Errorw("reload failed", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "configuration reloaded", reply)
}

// InjectEvent dispatches a JSON body as an event of the given type.
func (h *AdminHandler) InjectEvent(c *gin.Context) {
	eventType := c.Param("type")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBodySize))
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("failed to read request body", err.Error()))
		return
	}

	event, err := h.decode(eventType, body, biztime.NowUTC())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	reply, err := h.bus.Dispatch(c.Request.Context(), event)
	if err != nil {
		h.logger.Infow("injected event failed", "type", eventType, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", reply)
}
