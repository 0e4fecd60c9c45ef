package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ztmed/emrsearch/internal/common"
)

// HTTPOracle queries the bridge service's access endpoint:
//
//	GET {addr}/access/{recordID}/{userID} -> {"hasAccess": bool}
//
// Transport failures and non-2xx responses surface as errors; the access
// gate maps those to access denied.
type HTTPOracle struct {
	addr   string
	client *http.Client
}

// NewHTTPOracle builds an oracle client for the bridge service at addr.
func NewHTTPOracle(addr string) *HTTPOracle {
	return &HTTPOracle{
		addr:   addr,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// CheckAccess asks the ledger whether userID may read recordID.
func (o *HTTPOracle) CheckAccess(ctx context.Context, recordID, userID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/access/%s/%s", o.addr, url.PathEscape(recordID), url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: ledger request: %v", common.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: ledger returned %s", common.ErrBackendUnavailable, resp.Status)
	}

	var out struct {
		HasAccess bool `json:"hasAccess"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: ledger response decode: %v", common.ErrBackendUnavailable, err)
	}
	return out.HasAccess, nil
}
