// Package auth attaches Microsoft Entra ID bearer tokens to outbound
// requests.
//
// [NewRoundTripper] wraps a transport so every request carries a valid
// access token. The token is acquired lazily on first use and replaced
// once it is within a safety margin of its expiry; concurrent requests
// share one cached token and wait on a single refresh.
//
//	src, err := auth.NewSource(auth.Config{
//		TenantID:     "contoso.onmicrosoft.com",
//		ClientID:     "00000000-0000-0000-0000-000000000000",
//		ClientSecret: secret,
//		Resource:     "https://graph.microsoft.com",
//	}, nil)
//	rt, err := auth.NewRoundTripper(src, auth.DefaultRefreshMargin, nil, http.DefaultTransport)
//
// Tokens come from the OAuth2 client-credentials grant. Instead of a
// secret, a [Certificate] may be supplied, in which case a signed client
// assertion is sent with each exchange.
//
// A rejected exchange is reported as a [*CredentialError]; the request
// that needed the token is never sent.
package auth
