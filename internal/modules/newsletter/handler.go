package newsletter

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gin-gonic/gin/render"
	"go.uber.org/zap"

	"github.com/mx-space/newsletter/internal/config"
	"github.com/mx-space/newsletter/internal/models"
	"github.com/mx-space/newsletter/internal/pkg/flash"
	"github.com/mx-space/newsletter/internal/pkg/i18n"
	"github.com/mx-space/newsletter/internal/pkg/pagination"
	"github.com/mx-space/newsletter/internal/pkg/response"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Lister pages through live subscriber records.
type Lister interface {
	List(ctx context.Context, q pagination.Query) ([]models.FrontendUser, response.Pagination, error)
}

type subscribeForm struct {
	Email     string `form:"email"`
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
	MailHTML  string `form:"mail_html"`
	Pages     string `form:"pages"`
}

type unsubscribeForm struct {
	Email string `form:"email"`
}

// Result is the JSON body returned to clients that accept JSON.
type Result struct {
	OK         bool     `json:"ok"`
	Outcome    string   `json:"outcome"`
	MessageKey string   `json:"message_key"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// reply is the transport-neutral view of a finished submission.
type reply struct {
	status   int
	outcome  string
	key      string
	severity flash.Severity
	fields   []string
}

type pageData struct {
	Lang          string
	L             i18n.Localizer
	TitleKey      string
	Action        string
	Subscribe     bool
	HoneypotField string
	Pages         string
	Messages      []flash.Message
}

type Handler struct {
	svc     *Service
	lister  Lister
	flashes flash.Store
	bundle  *i18n.Bundle
	cfg     config.NewsletterRuntimeConfig
	logger  *zap.Logger
}

func NewHandler(svc *Service, lister Lister, flashes flash.Store, bundle *i18n.Bundle, cfg config.NewsletterRuntimeConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HoneypotField == "" {
		cfg.HoneypotField = config.DefaultHoneypotField
	}
	return &Handler{
		svc:     svc,
		lister:  lister,
		flashes: flashes,
		bundle:  bundle,
		cfg:     cfg,
		logger:  logger,
	}
}

// RegisterRoutes mounts the form pages on rg. formMW guards the POST actions.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, formMW ...gin.HandlerFunc) {
	rg.GET("/subscribe", h.showSubscribeForm)
	rg.GET("/unsubscribe", h.showUnsubscribeForm)
	rg.POST("/subscribe", chain(formMW, h.subscribe)...)
	rg.POST("/unsubscribe", chain(formMW, h.unsubscribe)...)
}

func chain(mw []gin.HandlerFunc, last gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	return append(append(out, mw...), last)
}

// RegisterAdminRoutes mounts the subscriber listing behind authMW.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/subscribers", authMW, h.listSubscribers)
}

func (h *Handler) showSubscribeForm(c *gin.Context) {
	h.renderPage(c, http.StatusOK, true, nil)
}

func (h *Handler) showUnsubscribeForm(c *gin.Context) {
	h.renderPage(c, http.StatusOK, false, nil)
}

func (h *Handler) subscribe(c *gin.Context) {
	var form subscribeForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		h.respond(c, true, reply{status: http.StatusBadRequest, outcome: "invalid", key: "subscribe_invalid", severity: flash.SeverityError})
		return
	}

	input := SubscribeInput{
		Email:         form.Email,
		FirstName:     form.FirstName,
		LastName:      form.LastName,
		WantsHTMLMail: form.MailHTML != "",
		Honeypot:      c.PostForm(h.cfg.HoneypotField),
		StoragePID:    ResolveStoragePID(h.contentPID(form.Pages), h.cfg.StoragePID),
	}

	outcome, err := h.svc.Subscribe(c.Request.Context(), input)
	h.respond(c, true, subscribeReply(outcome, err))
}

func (h *Handler) unsubscribe(c *gin.Context) {
	var form unsubscribeForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		h.respond(c, false, reply{status: http.StatusBadRequest, outcome: "invalid", key: "unsubscribe_invalid", severity: flash.SeverityError})
		return
	}

	outcome, err := h.svc.Unsubscribe(c.Request.Context(), form.Email)
	h.respond(c, false, unsubscribeReply(outcome, err))
}

func (h *Handler) listSubscribers(c *gin.Context) {
	users, page, err := h.lister.List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		h.logger.Error("list subscribers failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.Paged(c, users, page)
}

func subscribeReply(outcome SubscribeOutcome, err error) reply {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return reply{status: http.StatusUnprocessableEntity, outcome: "invalid", key: "subscribe_invalid", severity: flash.SeverityError, fields: verr.Fields}
	case err != nil:
		return reply{status: http.StatusInternalServerError, outcome: "error", key: "internal_error", severity: flash.SeverityError}
	}

	switch outcome.Kind {
	case SubscribeRejected:
		return reply{status: http.StatusBadRequest, outcome: string(outcome.Kind), key: "subscribe_spam", severity: flash.SeverityError}
	case SubscribeCreated:
		return reply{status: http.StatusCreated, outcome: string(outcome.Kind), key: "subscribe_success_new_user", severity: flash.SeverityOK}
	case SubscribeActivated:
		return reply{status: http.StatusOK, outcome: string(outcome.Kind), key: "subscribe_success", severity: flash.SeverityOK}
	default:
		return reply{status: http.StatusOK, outcome: string(outcome.Kind), key: "subscribe_already", severity: flash.SeverityOK}
	}
}

func unsubscribeReply(outcome UnsubscribeOutcome, err error) reply {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return reply{status: http.StatusUnprocessableEntity, outcome: "invalid", key: "unsubscribe_invalid", severity: flash.SeverityError, fields: verr.Fields}
	case err != nil:
		return reply{status: http.StatusInternalServerError, outcome: "error", key: "internal_error", severity: flash.SeverityError}
	}

	switch outcome.Kind {
	case UnsubscribeNotFound:
		return reply{status: http.StatusNotFound, outcome: string(outcome.Kind), key: "unsubscribe_error", severity: flash.SeverityError}
	case UnsubscribeAlreadyInactive:
		return reply{status: http.StatusOK, outcome: string(outcome.Kind), key: "unsubscribe_already", severity: flash.SeverityOK}
	default:
		return reply{status: http.StatusOK, outcome: string(outcome.Kind), key: "unsubscribe_success", severity: flash.SeverityOK}
	}
}

// respond answers JSON clients directly. Browsers get a redirect back to the
// form with a flash message, except for internal errors which render the
// form in place.
func (h *Handler) respond(c *gin.Context, subscribe bool, r reply) {
	l := h.localizer(c)
	msg := flash.Message{Severity: r.severity, Key: r.key, Text: l.T(r.key)}

	if wantsJSON(c) {
		c.JSON(r.status, Result{
			OK:         r.severity == flash.SeverityOK,
			Outcome:    r.outcome,
			MessageKey: r.key,
			Message:    msg.Text,
			Fields:     r.fields,
		})
		return
	}

	if r.status >= http.StatusInternalServerError || h.flashes == nil {
		h.renderPage(c, r.status, subscribe, []flash.Message{msg})
		return
	}

	sid := flash.SessionID(c, true)
	if err := h.flashes.Push(c.Request.Context(), sid, msg); err != nil {
		h.logger.Warn("flash push failed", zap.Error(err))
		h.renderPage(c, r.status, subscribe, []flash.Message{msg})
		return
	}
	c.Redirect(http.StatusSeeOther, c.Request.URL.RequestURI())
}

func (h *Handler) renderPage(c *gin.Context, status int, subscribe bool, messages []flash.Message) {
	if messages == nil {
		messages = h.popFlashes(c)
	}

	l := h.localizer(c)
	titleKey := "unsubscribe_title"
	if subscribe {
		titleKey = "subscribe_title"
	}
	var pages string
	if pid := h.contentPID(c.Query("pages")); pid > 0 {
		pages = strconv.Itoa(pid)
	}
	c.Render(status, render.HTML{
		Template: pageTemplates,
		Name:     "page",
		Data: pageData{
			Lang:          l.Lang.String(),
			L:             l,
			TitleKey:      titleKey,
			Action:        c.Request.URL.RequestURI(),
			Subscribe:     subscribe,
			HoneypotField: h.cfg.HoneypotField,
			Pages:         pages,
			Messages:      messages,
		},
	})
}

// contentPID returns the requested content page if it is a configured
// storage page, and 0 otherwise.
func (h *Handler) contentPID(raw string) int {
	pid, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !slices.Contains(h.cfg.StoragePages, pid) {
		return 0
	}
	return pid
}

func (h *Handler) popFlashes(c *gin.Context) []flash.Message {
	if h.flashes == nil {
		return nil
	}
	sid := flash.SessionID(c, false)
	if sid == "" {
		return nil
	}
	messages, err := h.flashes.Pop(c.Request.Context(), sid)
	if err != nil {
		h.logger.Warn("flash pop failed", zap.Error(err))
		return nil
	}
	return messages
}

func (h *Handler) localizer(c *gin.Context) i18n.Localizer {
	if h.bundle == nil {
		return i18n.Localizer{}
	}
	return h.bundle.Localizer(c.Query("lang"), c.GetHeader("Accept-Language"))
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
