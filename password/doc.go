// Package password implements salted scrypt password hashing and
// constant-time verification.
//
// # Output format
//
// Salts are 16 random bytes, hex encoded. Hashes are the 64-byte scrypt
// key (N=16384, r=8, p=1) derived from the NFC-normalized password and the
// salt string, hex encoded. The pair is stored side by side on the user
// record; neither is meaningful alone.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other credflow package.
//   - Log plaintext passwords.
package password
