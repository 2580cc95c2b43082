// Package auth stores account sessions (cookie, user agent and x-bc nonce)
// outside the configuration file. A Manager tries the system keychain, then
// an encrypted file, then the environment.
package auth
