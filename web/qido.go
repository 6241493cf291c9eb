package web

import (
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/types"
)

// Search response media types
const (
	mediaDicomJSON = "application/dicom+json"
	mediaDicomXML  = "application/dicom+xml"
	mediaJSON      = "application/json"
	mediaMultipart = "multipart/related"
)

// Warning header values
const (
	warnPartial     = `299 dicomarc "The number of results exceeded the maximum supported by the server. Additional results can be requested."`
	warnOptionalKey = `299 dicomarc "One or more optional matching keys are not supported; they were returned without being matched."`
)

// route describes what a search path addresses
type route struct {
	level      types.QueryLevel
	relational bool
}

var (
	levelPatient            = route{level: types.QueryLevelPatient}
	levelStudy              = route{level: types.QueryLevelStudy}
	levelSeries             = route{level: types.QueryLevelSeries}
	levelSeriesRelational   = route{level: types.QueryLevelSeries, relational: true}
	levelInstance           = route{level: types.QueryLevelInstance}
	levelInstanceRelational = route{level: types.QueryLevelInstance, relational: true}
)

func (s *Server) qido(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enc, ok := negotiateSearch(r.Header.Get("Accept"))
		if !ok {
			writeError(w, r, fmt.Errorf("%w for search: %q", errors.ErrNotAcceptable, r.Header.Get("Accept")))
			return
		}
		req := &query.Request{
			AETitle:           chi.URLParam(r, "aet"),
			Level:             rt.level,
			Relational:        rt.relational,
			StudyInstanceUID:  chi.URLParam(r, "study"),
			SeriesInstanceUID: chi.URLParam(r, "series"),
			Params:            r.URL.Query(),
			AccessControlIDs:  AccessControlIDs(r.Context()),
		}

		ctx := r.Context()
		written := false
		err := s.search.Search(ctx, req, func(res *query.Result) error {
			if res.OptionalKeyNotSupported {
				w.Header().Add("Warning", warnOptionalKey)
			}
			if res.Status == query.StatusPartial {
				w.Header().Add("Warning", warnPartial)
			}
			if res.Status == query.StatusEmpty {
				w.WriteHeader(http.StatusNoContent)
				written = true
				return nil
			}
			written = true
			return enc(w, res)
		})
		if err == nil {
			return
		}
		if !written {
			writeError(w, r, err)
			return
		}
		// The status line is out; only dropping the connection tells the
		// client the body is incomplete.
		loggerFrom(ctx).WarnContext(ctx, "Search response aborted", "error", err)
		panic(http.ErrAbortHandler)
	}
}

// searchEncoder writes the matches of a result in one media type
type searchEncoder func(w http.ResponseWriter, res *query.Result) error

// negotiateSearch picks the encoder for an Accept header. JSON is the
// default.
func negotiateSearch(accept string) (searchEncoder, bool) {
	if strings.TrimSpace(accept) == "" {
		return writeJSONMatches, true
	}
	for _, part := range strings.Split(accept, ",") {
		media, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch media {
		case mediaDicomJSON, mediaJSON, "*/*", "application/*":
			return writeJSONMatches, true
		case mediaMultipart, "multipart/*":
			if t := params["type"]; t == "" || t == mediaDicomXML {
				return writeXMLMatches, true
			}
		case mediaDicomXML:
			return writeXMLMatches, true
		}
	}
	return nil, false
}

// resultStatus is 206 for a result truncated to the AE's maximum, 200
// otherwise.
func resultStatus(res *query.Result) int {
	if res.Status == query.StatusPartial {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

// writeJSONMatches streams the matches as one DICOM JSON array.
func writeJSONMatches(w http.ResponseWriter, res *query.Result) error {
	w.Header().Set("Content-Type", mediaDicomJSON)
	w.WriteHeader(resultStatus(res))
	if _, err := w.Write([]byte{'['}); err != nil {
		return err
	}
	sep := ""
	for match, err := range res.Matches {
		if err != nil {
			return err
		}
		b, err := match.MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := w.Write(append([]byte(sep), b...)); err != nil {
			return err
		}
		sep = ","
	}
	_, err := w.Write([]byte{']'})
	return err
}

// writeXMLMatches streams each match as a native DICOM model part of a
// multipart/related response.
func writeXMLMatches(w http.ResponseWriter, res *query.Result) error {
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", fmt.Sprintf("%s; type=%q; boundary=%s", mediaMultipart, mediaDicomXML, mw.Boundary()))
	w.WriteHeader(resultStatus(res))
	for match, err := range res.Matches {
		if err != nil {
			return err
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mediaDicomXML}})
		if err != nil {
			return err
		}
		if err := dicom.WriteXML(part, match); err != nil {
			return err
		}
	}
	return mw.Close()
}
