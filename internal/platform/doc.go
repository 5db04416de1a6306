// Package platform is the authenticated HTTP client for the map platform API.
//
// # Overview
//
// Every tool handler reaches the platform through a Client. A Client is bound
// to one credential set for its whole life and owns its own token state, so
// clients for different tenants never share anything.
//
// # Authentication Modes
//
// OAuth client credentials: the client exchanges clientId/clientSecret at
//
//	POST <base>/api/v1/auth                        {clientId, clientSecret}
//	POST <base>/api/v1/auth/refreshAccessToken     {refreshToken}
//
// and sends "Authorization: Bearer <token>" on business calls.
//
// API key: a static key is sent in the X-API-Key header (configurable). No
// token lifecycle applies and nothing is retried.
//
// # Components
//
//   - TokenStore: zero or one TokenPair; expired when absent or within
//     ExpiryMargin of its expiry.
//   - IdentityClient: the Authenticator performing the two identity calls.
//   - Gate: runs at most one authenticate/refresh flow at a time; concurrent
//     callers block on a completion channel and re-check the store on wake-up.
//   - Client: the request pipeline with the 401 refresh-and-retry policy.
//
// # Retry Policy
//
// On a 401 from a business call the client refreshes once through the gate and
// retries. If the refresh fails the token is discarded, the client
// authenticates from scratch and retries once. At most two business attempts
// are made per call. Any other failure is returned immediately.
//
// # Errors
//
// All failures are *Error values with a Kind (auth config, auth request,
// business request, network). Match with errors.Is against ErrAuthConfig,
// ErrAuthRequest, ErrBusinessRequest and ErrTransportNetwork, or use
// IsUnauthorized and StatusCode.
//
// # Usage
//
//	client, err := platform.NewClient(platform.Config{
//	    BaseURL:     "https://api.example.com",
//	    Credentials: platform.Credentials{ClientID: id, ClientSecret: secret},
//	    Logger:      logger,
//	})
//	maps, err := client.Get(ctx, "/api/v1/map", nil)
package platform
