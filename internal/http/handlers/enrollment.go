package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"finlern/internal/apierror"
	"finlern/internal/botdetect"
	"finlern/internal/http/middleware"
	"finlern/internal/logging"
	"finlern/internal/notify"
	"finlern/internal/repo"
	"finlern/internal/validate"
	"finlern/internal/view"
)

const (
	msgBadBody       = "Invalid request body."
	msgBotRejected   = "We could not process your submission. Please try again."
	msgMalicious     = "Invalid input detected. Please check your submission."
	msgPersistFailed = "We could not save your enrollment. Please try again later."
	msgAccepted      = "Thank you! Your enrollment has been received."
	msgNotifyFailed  = "Your enrollment was saved, but our confirmation could not be sent. We will contact you soon."
)

type enrollmentRequest struct {
	validate.Enrollment
	Honeypot  botdetect.Signal `json:"_honeypot"`
	CSRFToken string           `json:"csrfToken"`
}

type enrollmentResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Notice  string `json:"notice,omitempty"`
}

// SubmitEnrollment screens the form for bots, validates and sanitizes it,
// appends the record and notifies the school. A failed notification does not
// fail the request once the record is stored.
func (h *Handlers) SubmitEnrollment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enrollmentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		apierror.InvalidSubmission(msgBadBody).WriteJSON(w)
		return
	}

	if reason, bot := h.bots.Evaluate(req.Honeypot); bot {
		logging.LogSecurityEvent(ctx, h.logger, "bot_rejected",
			"reason", string(reason),
			"client_ip", middleware.ClientIP(r),
			"form_version", h.bots.Profile().Version,
		)
		apierror.InvalidSubmission(msgBotRejected).WriteJSON(w)
		return
	}

	report := validate.Check(req.Enrollment.Inputs(h.courses))
	if err := report.Err(); err != nil {
		var fieldErr *validate.FieldError
		switch {
		case errors.Is(err, validate.ErrMalicious):
			logging.LogSecurityEvent(ctx, h.logger, "malicious_input",
				"signatures", report.Threats,
				"client_ip", middleware.ClientIP(r),
			)
			apierror.InvalidSubmission(msgMalicious).WriteJSON(w)
		case errors.As(err, &fieldErr):
			h.logger.Info(ctx, "enrollment rejected", "field", fieldErr.Field)
			apierror.InvalidSubmission(fieldErr.Message).WriteJSON(w)
		default:
			apierror.InvalidSubmission(err.Error()).WriteJSON(w)
		}
		return
	}

	clean := report.Enrollment()
	now := h.now().UTC()
	rec := repo.Enrollment{
		ID:                repo.NewEnrollmentID(now),
		FullName:          clean.FullName,
		Email:             clean.Email,
		PhoneNumber:       clean.PhoneNumber,
		CurrentJobStatus:  clean.CurrentJobStatus,
		DesiredOccupation: clean.DesiredOccupation,
		CourseType:        clean.CourseType,
		FormVersion:       h.bots.Profile().Version,
		CreatedAt:         now,
	}
	if err := h.store.Append(ctx, &rec); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		h.logger.Error(ctx, err, "persist enrollment", "id", rec.ID)
		apierror.UpstreamUnavailable(msgPersistFailed).WriteJSON(w)
		return
	}
	h.logger.Info(ctx, "enrollment recorded", "id", rec.ID, "course", rec.CourseType)

	resp := enrollmentResponse{Message: msgAccepted, ID: rec.ID}
	if err := h.notify(r, rec); err != nil {
		h.logger.Warn(ctx, err, "enrollment notification failed", "id", rec.ID)
		resp.Notice = msgNotifyFailed
	}
	apierror.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handlers) notify(r *http.Request, rec repo.Enrollment) error {
	if h.notifier == nil {
		return errors.New("no notifier configured")
	}
	msg, err := view.EnrollmentMessage(rec)
	if err != nil {
		return err
	}
	// the record is stored; a client disconnect must not abort the mail
	ctx := context.WithoutCancel(r.Context())
	return h.notifier.Send(ctx, notify.Message{To: h.mailTo, Subject: msg.Subject, HTML: msg.HTML})
}
