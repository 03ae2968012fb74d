// unison-payments/internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/unison-payments/internal/payments"
	perr "github.com/example/unison-payments/pkg/errors"
)

const (
	maxBodyBytes       = 1 << 20
	webhookSignatureHd = "X-Webhook-Signature"
)

// Coordinator is what the handlers need from *payments.Service.
type Coordinator interface {
	RegisterInstrument(ctx context.Context, inst payments.PaymentInstrument, token string) (payments.PaymentInstrument, error)
	GetInstrument(ctx context.Context, instrumentID string) (payments.PaymentInstrument, error)
	CreateTransaction(ctx context.Context, req payments.PaymentTransactionRequest) (payments.PaymentTransaction, error)
	GetTransactionStatus(ctx context.Context, txnID string) (payments.PaymentTransaction, error)
	ProcessWebhook(ctx context.Context, providerName string, payload map[string]any) (payments.PaymentTransaction, error)
}

var _ Coordinator = (*payments.Service)(nil)

type Deps struct {
	Payments        Coordinator
	RequireApproval bool
	Logger          *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

type instrumentOut struct {
	OK         bool                       `json:"ok"`
	Instrument payments.PaymentInstrument `json:"instrument"`
}

type transactionOut struct {
	OK          bool                        `json:"ok"`
	Transaction payments.PaymentTransaction `json:"transaction"`
}

type errorOut struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func RegisterInstrumentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in InstrumentPayload
		if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &in); err != nil {
			writeError(w, d.logger(), err)
			return
		}
		if err := in.Normalize(); err != nil {
			writeError(w, d.logger(), err)
			return
		}
		inst, err := d.Payments.RegisterInstrument(r.Context(), in.Instrument(), in.Token)
		if err != nil {
			writeError(w, d.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, instrumentOut{OK: true, Instrument: inst})
	}
}

func GetInstrumentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := d.Payments.GetInstrument(r.Context(), mux.Vars(r)["instrument_id"])
		if err != nil {
			writeError(w, d.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, instrumentOut{OK: true, Instrument: inst})
	}
}

func CreateTransactionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in TransactionPayload
		if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &in); err != nil {
			writeError(w, d.logger(), err)
			return
		}
		if err := in.Normalize(); err != nil {
			writeError(w, d.logger(), err)
			return
		}
		if err := CheckApproval(d.RequireApproval, in.AuthorizationContext); err != nil {
			writeError(w, d.logger(), err)
			return
		}
		txn, err := d.Payments.CreateTransaction(r.Context(), in.Request())
		if err != nil {
			writeError(w, d.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, transactionOut{OK: true, Transaction: txn})
	}
}

func GetTransactionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txn, err := d.Payments.GetTransactionStatus(r.Context(), mux.Vars(r)["txn_id"])
		if err != nil {
			writeError(w, d.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, transactionOut{OK: true, Transaction: txn})
	}
}

// WebhookHandler is unauthenticated; providers authenticate by signature.
func WebhookHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, d.logger(), perr.Wrap(perr.CodeValidation, "unreadable webhook body", err))
			return
		}
		payload := WebhookPayload(raw, r.Header.Get(webhookSignatureHd))

		txn, err := d.Payments.ProcessWebhook(r.Context(), mux.Vars(r)["provider"], payload)
		if err != nil {
			switch perr.CodeOf(err) {
			case perr.CodeUnknownProvider, perr.CodeNotFound:
				writeError(w, d.logger(), err)
			default:
				writeJSON(w, http.StatusBadRequest, errorOut{
					Error:  perr.CodeProvider,
					Detail: "webhook processing failed: " + errorDetail(err),
				})
			}
			return
		}
		writeJSON(w, http.StatusOK, transactionOut{OK: true, Transaction: txn})
	}
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(err error) int {
	switch perr.CodeOf(err) {
	case perr.CodeValidation:
		return http.StatusBadRequest
	case perr.CodeUnauthorized:
		return http.StatusUnauthorized
	case perr.CodeForbidden:
		return http.StatusForbidden
	case perr.CodeNotFound, perr.CodeUnknownProvider:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := StatusFor(err)
	out := errorOut{Error: perr.CodeOf(err), Detail: perr.Message(err)}
	if status == http.StatusInternalServerError {
		log.Error("payments request failed", "err", err)
		if out.Error == "" {
			out.Error, out.Detail = "INTERNAL", "internal error"
		}
	}
	writeJSON(w, status, out)
}

func errorDetail(err error) string {
	var e perr.E
	if errors.As(err, &e) && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return perr.Message(err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
