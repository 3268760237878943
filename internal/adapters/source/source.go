// Package source streams CSV files from local disk or S3.
package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cockroachdb/errors"
)

const (
	s3Scheme      = "s3://"
	defaultRegion = "us-east-1"
)

// Opener resolves URIs to CSV readers.
type Opener struct {
	region string

	mu sync.Mutex
	s3 s3iface.S3API
}

// NewOpener creates an Opener. An S3 client is built on first use unless one
// is supplied.
func NewOpener(opts ...Option) *Opener {
	o := &Opener{region: defaultRegion}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open returns a reader over the CSV at uri, which is a local path or
// s3://bucket/key.
func (o *Opener) Open(ctx context.Context, uri string) (*Reader, error) {
	rc, err := o.OpenFile(ctx, uri)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(rc)
	if err != nil {
		_ = rc.Close()
		return nil, errors.Wrapf(err, "source %s", uri)
	}
	return r, nil
}

// OpenFile returns the raw stream at uri.
func (o *Opener) OpenFile(ctx context.Context, uri string) (io.ReadCloser, error) {
	if !strings.HasPrefix(uri, s3Scheme) {
		if uri == "" {
			return nil, errors.Mark(errors.New("empty uri"), ErrBadURI)
		}
		f, err := os.Open(uri)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "open %s", uri), ErrOpen)
		}
		return f, nil
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return nil, errors.Mark(errors.Newf("uri %q", uri), ErrBadURI)
	}
	client, err := o.client()
	if err != nil {
		return nil, err
	}
	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "get %s", uri), ErrOpen)
	}
	return out.Body, nil
}

func (o *Opener) client() (s3iface.S3API, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.s3 != nil {
		return o.s3, nil
	}
	sess, err := session.NewSession(aws.NewConfig().WithRegion(o.region))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "aws session"), ErrOpen)
	}
	o.s3 = s3.New(sess)
	return o.s3, nil
}

// Record is one data row keyed by header name. Index counts data rows from 0.
type Record struct {
	Index  int
	Fields map[string]string
}

// Reader iterates CSV data rows in file order.
type Reader struct {
	rc     io.Closer
	cr     *csv.Reader
	header []string
	next   int
}

// NewReader reads the header line from r. If r is an io.Closer, Close closes it.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	h := make([]string, len(header))
	for i, name := range header {
		h[i] = strings.TrimSpace(name)
	}
	if len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], "\ufeff")
	}

	rd := &Reader{cr: cr, header: h}
	if c, ok := r.(io.Closer); ok {
		rd.rc = c
	}
	return rd, nil
}

// Header returns the column names.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next record. The bool is false once the input is drained;
// the record is then zero and err is nil.
func (r *Reader) Next() (Record, bool, error) {
	row, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "read row %d", r.next)
	}

	fields := make(map[string]string, len(r.header))
	for i, name := range r.header {
		if i < len(row) {
			fields[name] = row[i]
		}
	}
	rec := Record{Index: r.next, Fields: fields}
	r.next++
	return rec, true, nil
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	if r.rc == nil {
		return nil
	}
	return r.rc.Close()
}
