// Package mailer renders the credential emails (verification code, password
// reset link, two-factor code, account deletion code) and hands them to a
// [Transport]. SMTP delivery uses mailyak; API delivery uses Resend.
package mailer
