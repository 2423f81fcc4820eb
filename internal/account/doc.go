// Package account is the HTTP client for the Account/Session Gateway.
//
// # Endpoints
//
//	POST   /auth/login              credential sign-in
//	POST   /auth/signup             credential sign-up
//	POST   /auth/logout             invalidate the remote session
//	POST   /auth/forgot-password    request a reset email
//	POST   /auth/reset-password     set a new password from a reset token
//	POST   /auth/callback           exchange an OAuth code {code, redirectUri}
//	GET    /users                   fetch the signed-in user record
//	POST   /users                   create the user record if absent
//	PUT    /users                   patch profile fields
//	GET    /chat/sessions           list chat sessions
//	GET    /chat/sessions/{id}      session metadata plus full history
//	DELETE /chat/sessions/{id}      delete a session
//	POST   /chat/message            send {message, sessionId?}
//	POST   /subscription/checkout   checkout redirect URL
//	POST   /subscription/portal     billing portal redirect URL
//	GET    /subscription/prices     available prices
//
// Credentials travel as cookies. The cookie jar is backed by a
// store.CookieStore so a later process resumes the same session.
//
// # Errors
//
// Every failure is an *apperr.Error: transport failures and 5xx responses are
// KindNetwork, rejections with a 4xx status are KindAuth with a code chosen
// per endpoint (see statusCode).
package account
