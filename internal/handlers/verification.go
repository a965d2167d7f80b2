package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CallumWaite/gatehouse/internal/models"
	"github.com/CallumWaite/gatehouse/internal/services"
	"github.com/CallumWaite/gatehouse/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

// waitRounding keeps reported wait times readable in responses.
const waitRounding = time.Second

// VerificationHandler exposes verification-code request, verify, and query
// endpoints over the issuance service.
type VerificationHandler struct {
	verification *services.VerificationService
	ipConfig     *httpx.IPConfig
}

func NewVerificationHandler(verification *services.VerificationService, ipConfig *httpx.IPConfig) *VerificationHandler {
	return &VerificationHandler{verification: verification, ipConfig: ipConfig}
}

type phoneParams struct {
	CountryCode int    `validate:"required,gte=1,lte=999"`
	PhoneNumber string `validate:"required,numeric,min=4,max=14"`
}

type emailParams struct {
	EmailAddress string `validate:"required,email,max=254"`
}

// securityLevel maps the high-level-security query flag to a level.
func securityLevel(r *http.Request) models.SecurityLevel {
	if r.URL.Query().Get("high_security") == "true" {
		return models.SecurityHigh
	}
	return models.SecurityLow
}

func (h *VerificationHandler) phoneContact(r *http.Request) (models.ContactRef, error) {
	countryCode, err := strconv.Atoi(chi.URLParam(r, "countryCode"))
	if err != nil {
		return models.ContactRef{}, fmt.Errorf("validation failed: countryCode: must be numeric")
	}
	params := phoneParams{CountryCode: countryCode, PhoneNumber: chi.URLParam(r, "phoneNumber")}
	if err := ValidateRequest(params); err != nil {
		return models.ContactRef{}, err
	}
	return models.PhoneContact(params.CountryCode, params.PhoneNumber, securityLevel(r)), nil
}

func (h *VerificationHandler) emailContact(r *http.Request) (models.ContactRef, error) {
	params := emailParams{EmailAddress: chi.URLParam(r, "emailAddress")}
	if err := ValidateRequest(params); err != nil {
		return models.ContactRef{}, err
	}
	return models.EmailContact(params.EmailAddress, securityLevel(r)), nil
}

// RequestPhoneCode handles GET /verification/phone/{countryCode}/{phoneNumber}.
func (h *VerificationHandler) RequestPhoneCode(w http.ResponseWriter, r *http.Request) {
	ref, err := h.phoneContact(r)
	if err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}
	h.requestCode(w, r, ref)
}

// RequestEmailCode handles GET /verification/email/{emailAddress}.
func (h *VerificationHandler) RequestEmailCode(w http.ResponseWriter, r *http.Request) {
	ref, err := h.emailContact(r)
	if err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}
	h.requestCode(w, r, ref)
}

func (h *VerificationHandler) requestCode(w http.ResponseWriter, r *http.Request, ref models.ContactRef) {
	address := httpx.ExtractClientIP(r, h.ipConfig)

	result, err := h.verification.RequestCode(r.Context(), address, ref)
	if err != nil {
		httpx.WriteInternalError(w, "failed to process verification code request")
		return
	}

	switch result.Status {
	case services.RequestIssued:
		httpx.WriteJSON(w, http.StatusOK, struct{}{})
	case services.RequestDeniedInterval:
		httpx.WriteError(w, http.StatusTooManyRequests, "minimum_interval_not_elapsed",
			fmt.Sprintf("Please wait %s to request a new verification code.", result.Wait.Round(waitRounding)))
	default:
		httpx.WriteTooManyRequests(w,
			fmt.Sprintf("The verification code request limit has been reached. Please wait %s to request a new verification code.",
				result.Wait.Round(waitRounding)))
	}
}

// VerifyPhoneCode handles POST /verification/phone/{countryCode}/{phoneNumber}/{code}.
func (h *VerificationHandler) VerifyPhoneCode(w http.ResponseWriter, r *http.Request) {
	ref, err := h.phoneContact(r)
	if err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}
	h.verifyCode(w, r, ref)
}

// VerifyEmailCode handles POST /verification/email/{emailAddress}/{code}.
func (h *VerificationHandler) VerifyEmailCode(w http.ResponseWriter, r *http.Request) {
	ref, err := h.emailContact(r)
	if err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}
	h.verifyCode(w, r, ref)
}

func (h *VerificationHandler) verifyCode(w http.ResponseWriter, r *http.Request, ref models.ContactRef) {
	matched, err := h.verification.Verify(r.Context(), ref, chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			httpx.WriteBadRequest(w, "verification code format invalid")
			return
		}
		httpx.WriteInternalError(w, "failed to verify code")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"verified": matched})
}
