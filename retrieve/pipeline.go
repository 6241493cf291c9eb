// Package retrieve streams stored instances back to a requester in the
// transfer syntax it asked for.
package retrieve

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/interfaces"
	"github.com/caio-sobreiro/dicomarc/types"
)

// DefaultJPEGQuality is the quality used when compressing to JPEG Baseline.
const DefaultJPEGQuality = 90

// Option configures a Pipeline instance.
type Option func(*Pipeline)

// WithLogger overrides the logger used by the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithBulkDataThreshold sets the size above which values are copied straight
// from storage when the object is written.
func WithBulkDataThreshold(n int64) Option {
	return func(p *Pipeline) {
		p.bulkDataThreshold = n
	}
}

// WithJPEGQuality sets the JPEG Baseline compression quality, 1 to 100.
func WithJPEGQuality(q int) Option {
	return func(p *Pipeline) {
		p.jpegQuality = q
	}
}

// Pipeline opens stored instances, applies attribute overrides and converts
// them to a requested transfer syntax
type Pipeline struct {
	storage           interfaces.StorageReader
	logger            *slog.Logger
	bulkDataThreshold int64
	jpegQuality       int
}

// New creates a pipeline reading objects from storage.
func New(storage interfaces.StorageReader, opts ...Option) *Pipeline {
	p := &Pipeline{
		storage:           storage,
		logger:            slog.Default(),
		bulkDataThreshold: dicom.DefaultBulkDataThreshold,
		jpegQuality:       DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieve prepares the instance at ref for writing in targetTS. An empty or
// "*" target keeps the stored transfer syntax. Attributes in overrides
// replace the stored ones. Every step that can fail, decoding and any pixel
// data conversion included, runs before Retrieve returns, so a caller that
// gets an Object can commit to a response. The caller must close the Object.
func (p *Pipeline) Retrieve(ctx context.Context, ref types.InstanceRef, overrides *dicom.Dataset, targetTS string) (*Object, error) {
	iuid := ref.SOPInstanceUID
	src, err := p.storage.Open(ctx, ref.Location)
	if err != nil {
		return nil, errors.NewRetrieveError(iuid, "open", err)
	}

	f, err := dicom.ReadFile(src, src.Size(), dicom.WithBulkDataThreshold(p.bulkDataThreshold))
	if err != nil {
		src.Close()
		return nil, errors.NewRetrieveError(iuid, "decode", err)
	}
	if err := ctx.Err(); err != nil {
		src.Close()
		return nil, errors.NewRetrieveError(iuid, "decode", err)
	}

	ds := f.Dataset
	if overrides != nil {
		ds.Merge(overrides)
	}
	if targetTS == "" || targetTS == "*" {
		targetTS = f.TransferSyntaxUID
	}
	if err := Transcode(ds, f.TransferSyntaxUID, targetTS, p.jpegQuality); err != nil {
		src.Close()
		return nil, errors.NewRetrieveError(iuid, "transcode", err)
	}
	if targetTS != f.TransferSyntaxUID {
		p.logger.DebugContext(ctx, "Transcoding instance",
			"sop_instance_uid", iuid,
			"from", f.TransferSyntaxUID,
			"to", targetTS)
	}

	return &Object{
		Meta:              dicom.FileMetaFor(ds, targetTS),
		Dataset:           ds,
		TransferSyntaxUID: targetTS,
		SOPInstanceUID:    iuid,
		src:               src,
	}, nil
}

// Object is a retrieved instance ready to be written. Deferred values are
// read from the storage handle it holds until it is closed.
type Object struct {
	Meta              *dicom.Dataset
	Dataset           *dicom.Dataset
	TransferSyntaxUID string
	SOPInstanceUID    string

	src       interfaces.StoredObject
	closeOnce sync.Once
	closeErr  error
}

// WriteTo writes the object as a Part 10 stream and closes it.
func (o *Object) WriteTo(w io.Writer) (int64, error) {
	defer o.Close()
	n, err := dicom.WriteFile(w, o.Meta, o.Dataset)
	if err != nil {
		return n, errors.NewRetrieveError(o.SOPInstanceUID, "write", err)
	}
	return n, nil
}

// Close releases the storage handle. It is safe to call more than once.
func (o *Object) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = o.src.Close()
	})
	return o.closeErr
}
