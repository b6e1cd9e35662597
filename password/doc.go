// Package password hashes and verifies login secrets with Argon2id.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful login.
//
// [Hasher.VerifyDummy] burns the same work as a real verification. Login calls
// it for unknown identities so response timing does not reveal which emails
// are registered.
//
// # What this package must NOT do
//
//   - Store or look up credentials. Callers pass plaintext and stored hashes.
//   - Log plaintext passwords.
package password
