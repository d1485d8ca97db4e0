package client

import (
	"context"
	"errors"

	"github.com/jpalmerr/blockyswitch/internal/transport"
)

// Relay is a [transport.Requester] that has the daemon perform the request
// (the testConnection action). It is the interactive process's fallback
// transport when its own request fails.
type Relay struct {
	client *Client
}

// NewRelay creates a Relay over c.
func NewRelay(c *Client) *Relay {
	return &Relay{client: c}
}

// Get implements [transport.Requester]. A daemon-reported failure keeps its
// kind; a failed round trip to the daemon is reported as a network error.
func (r *Relay) Get(ctx context.Context, url string) (transport.Response, error) {
	data, err := r.client.TestConnection(ctx, url)
	if err != nil {
		var de *Error
		if errors.As(err, &de) && de.Kind != "" {
			return transport.Response{}, &transport.Error{
				Kind: transport.ParseKind(de.Kind),
				URL:  url,
				Err:  errors.New(de.Message),
			}
		}
		return transport.Response{}, &transport.Error{Kind: transport.KindNetwork, URL: url, Err: err}
	}

	if data.Status < 200 || data.Status >= 300 {
		return transport.Response{}, &transport.Error{Kind: transport.KindBadStatus, URL: url, StatusCode: data.Status}
	}
	return transport.Response{StatusCode: data.Status, Body: []byte(data.Body)}, nil
}
