package httphandler

import (
	"net/http"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

// PairingQR renders the current pairing code as a QR PNG so it can be scanned
// from a companion device. Returns 404 when no pairing is in progress. The
// X-Pairing-Generation header lets callers detect a superseded code.
func (h *Handler) PairingQR(w http.ResponseWriter, _ *http.Request) {
	code, ok := h.session.PairingCode()
	if !ok {
		writeError(w, http.StatusNotFound, "no pairing code available")
		return
	}

	png, err := qrcode.Encode(code.Code, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("qr encode failed", "error", err)
		writeError(w, http.StatusInternalServerError, "qr encoding failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Pairing-Generation", strconv.FormatUint(code.Generation, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
