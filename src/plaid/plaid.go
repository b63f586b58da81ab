package plaid

import (
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
)

// NewPlaidClient builds the plaid-go client. env is "sandbox", "development"
// or "production"; anything else is rejected.
func NewPlaidClient(clientID, secret, env string) (*plaid.APIClient, error) {
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	configuration.AddDefaultHeader("PLAID-SECRET", secret)
	configuration.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	switch env {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "development":
		configuration.UseEnvironment(plaid.Environment("https://development.plaid.com"))
	case "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		return nil, fmt.Errorf("invalid Plaid environment: %s", env)
	}

	return plaid.NewAPIClient(configuration), nil
}
