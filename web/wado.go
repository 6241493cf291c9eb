package web

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/caio-sobreiro/dicomarc/errors"
)

const mediaDicom = "application/dicom"

// instanceAccept is the negotiated form of a retrieve response
type instanceAccept struct {
	transferSyntax string
	multipart      bool
}

// negotiateInstance reads the transfer syntax and packaging the client
// accepts. An absent transfer-syntax parameter, or "*", keeps the stored
// syntax.
func negotiateInstance(accept string) (instanceAccept, bool) {
	if strings.TrimSpace(accept) == "" {
		return instanceAccept{}, true
	}
	for _, part := range strings.Split(accept, ",") {
		media, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch media {
		case mediaDicom, "application/*", "*/*":
			return instanceAccept{transferSyntax: params["transfer-syntax"]}, true
		case mediaMultipart:
			if t := params["type"]; t == "" || t == mediaDicom {
				return instanceAccept{transferSyntax: params["transfer-syntax"], multipart: true}, true
			}
		}
	}
	return instanceAccept{}, false
}

func (s *Server) wado(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accept, ok := negotiateInstance(r.Header.Get("Accept"))
	if !ok {
		writeError(w, r, fmt.Errorf("%w for retrieve: %q", errors.ErrNotAcceptable, r.Header.Get("Accept")))
		return
	}
	aet := chi.URLParam(r, "aet")
	ae, err := s.caps.Lookup(ctx, aet)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ae.Installed {
		writeError(w, r, errors.NewCapabilityError(aet, "application entity is not installed"))
		return
	}

	ref, err := s.locator.Locate(ctx, chi.URLParam(r, "study"), chi.URLParam(r, "series"), chi.URLParam(r, "sop"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	obj, err := s.pipeline.Retrieve(ctx, *ref, nil, accept.transferSyntax)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer obj.Close()

	partType := fmt.Sprintf("%s; transfer-syntax=%s", mediaDicom, obj.TransferSyntaxUID)
	if !accept.multipart {
		w.Header().Set("Content-Type", partType)
		if _, err := obj.WriteTo(w); err != nil {
			abort(ctx, err)
		}
		return
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", fmt.Sprintf("%s; type=%q; boundary=%s", mediaMultipart, mediaDicom, mw.Boundary()))
	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {partType}})
	if err == nil {
		_, err = obj.WriteTo(part)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		abort(ctx, err)
	}
}

// abort drops the connection of a response whose body failed midway, so the
// client cannot mistake the truncated object for a complete one.
func abort(ctx context.Context, err error) {
	loggerFrom(ctx).WarnContext(ctx, "Retrieve response aborted", "error", err)
	panic(http.ErrAbortHandler)
}
