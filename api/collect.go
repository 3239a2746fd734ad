package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tfkr-ae/formrelay"
	"github.com/tfkr-ae/formrelay/domain"
)

// MaxBodyBytes bounds the size of a submission body.
const MaxBodyBytes = 1 << 20

const (
	mimeJSON = "application/json"
	mimeForm = "application/x-www-form-urlencoded"
)

type CollectHandler struct {
	relay  Relay
	logger *slog.Logger
}

func NewCollectHandler(relay Relay, logger *slog.Logger) *CollectHandler {
	return &CollectHandler{relay: relay, logger: logger}
}

// Collect accepts a submission. Duplicates and downstream failures answer 200, the
// outcome is in the body.
func (h *CollectHandler) Collect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", MaxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	req, err := decodeRequest(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.relay.Collect(r.Context(), req)
	switch {
	case errors.Is(err, formrelay.ErrValidation):
		writeJSON(w, http.StatusBadRequest, res)
	case err != nil:
		h.logger.Error("collecting submission", "trace_id", res.TraceID, "form_type", req.FormType, "err", err)
		writeJSON(w, http.StatusInternalServerError, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// decodeRequest reads a submission from a JSON or url-encoded body. Without a
// Content-Type the body is sniffed.
func decodeRequest(contentType string, body []byte) (formrelay.Request, error) {
	mediaType := ""
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return formrelay.Request{}, fmt.Errorf("invalid content type %q", contentType)
		}
		mediaType = parsed
	} else if mimetype.Detect(body).Is(mimeJSON) {
		mediaType = mimeJSON
	} else {
		mediaType = mimeForm
	}

	fields := make(domain.Payload)
	switch mediaType {
	case mimeJSON:
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return formrelay.Request{}, errors.New("body is not a json object")
		}
	case mimeForm:
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return formrelay.Request{}, errors.New("body is not url-encoded")
		}
		for key, vals := range values {
			if len(vals) == 1 {
				fields[key] = vals[0]
			} else {
				fields[key] = vals
			}
		}
	default:
		return formrelay.Request{}, fmt.Errorf("unsupported content type %q", mediaType)
	}

	var req formrelay.Request
	if raw, ok := fields["trace_id"]; ok {
		traceID, ok := raw.(string)
		if !ok {
			return formrelay.Request{}, errors.New("trace_id must be a string")
		}
		req.TraceID = traceID
		delete(fields, "trace_id")
	}
	if raw, ok := fields["form_type"]; ok {
		formType, ok := raw.(string)
		if !ok {
			return formrelay.Request{}, errors.New("form_type must be a string")
		}
		req.FormType = domain.FormType(formType)
		delete(fields, "form_type")
	}
	req.Payload = fields
	return req, nil
}
