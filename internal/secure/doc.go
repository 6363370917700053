// Package secure keeps container passphrases and derived keys out of
// swappable, plainly readable memory between unlock and rewrite.
//
// It wraps the memguard library: values are sealed in an encrypted enclave
// (XSalsa20Poly1305), mlocked where the platform allows it, and only opened
// for the duration of the operation that needs them.
//
// # Usage
//
//	buf, err := secure.NewSecureBuffer([]byte(passphrase))
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	key := locked.Bytes()
//
// Call memguard.Purge() on exit (cmd/passup does) to wipe every enclave the
// process created.
package secure
