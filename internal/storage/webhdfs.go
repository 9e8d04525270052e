package storage

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// WebHDFS fetches block locations through the namenode REST API, which the
// native client does not expose.
type WebHDFS struct {
	Client  *fasthttp.Client
	Timeout time.Duration
	User    string
}

type blockLocationsResponse struct {
	BlockLocations struct {
		BlockLocation []BlockLocation `json:"BlockLocation"`
	} `json:"BlockLocations"`
}

type remoteExceptionResponse struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

// NewWebHDFS returns a client with the given request timeout.
func NewWebHDFS(user string, timeout time.Duration) *WebHDFS {
	return &WebHDFS{
		Client:  &fasthttp.Client{Name: "toolweave", MaxIdleConnDuration: time.Minute},
		Timeout: timeout,
		User:    user,
	}
}

// BlockLocations issues GETFILEBLOCKLOCATIONS for the file at p on the
// namenode HTTP endpoint base (for example http://namenode:9870).
func (w *WebHDFS) BlockLocations(ctx context.Context, base, p string, length int64) ([]BlockLocation, error) {
	query := url.Values{}
	query.Set("op", "GETFILEBLOCKLOCATIONS")
	query.Set("offset", "0")
	query.Set("length", strconv.FormatInt(length, 10))
	if w.User != "" {
		query.Set("user.name", w.User)
	}
	uri := fmt.Sprintf("%s/webhdfs/v1%s?%s", base, (&url.URL{Path: p}).EscapedPath(), query.Encode())

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(w.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.Client.DoDeadline(req, resp, deadline); err != nil {
		return nil, apperrors.NewLocalityError(p, err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return nil, apperrors.NewLocalityError(p, fs.ErrNotExist)
	case status != fasthttp.StatusOK:
		var remote remoteExceptionResponse
		if err := sonic.Unmarshal(resp.Body(), &remote); err == nil && remote.RemoteException.Message != "" {
			return nil, apperrors.NewLocalityError(p, fmt.Errorf("%s: %s", remote.RemoteException.Exception, remote.RemoteException.Message))
		}
		return nil, apperrors.NewLocalityError(p, fmt.Errorf("unexpected status %d", status))
	}

	var decoded blockLocationsResponse
	if err := sonic.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, apperrors.NewLocalityError(p, fmt.Errorf("decode block locations: %w", err))
	}
	return decoded.BlockLocations.BlockLocation, nil
}
