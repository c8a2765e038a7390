// Package oauth implements the authorization-code flow with PKCE for the
// supported identity providers.
//
// A Client owns one provider's endpoints and user-info lookup. AuthURL
// stores a random state and code verifier in short-lived cookies and returns
// the provider's consent URL. Callback checks the returned state against the
// cookie, exchanges the code with the verifier and resolves the provider
// profile into an account.Identity.
//
// Both cookies are single use: Callback clears them whether or not the
// exchange succeeds.
package oauth
