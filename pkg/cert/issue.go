package cert

import (
	"math/big"

	"github.com/fancl20/trustchain/pkg/sig"
)

// Issuer is an authority able to sign certificates.
type Issuer struct {
	// Name is written into the issuer field of issued certificates.
	Name       string
	PublicKey  sig.PublicKey
	PrivateKey *big.Int
}

func (is Issuer) sign(subject string, key sig.PublicKey, timestamp int64) sig.Signature {
	return sig.Sign(sig.DataString(subject, key, timestamp), is.PublicKey.N, is.PrivateKey)
}

// SelfSign issues the root certificate for the issuer's own key.
func (is Issuer) SelfSign(timestamp int64) *RootCertificate {
	return &RootCertificate{Certificate: Certificate{
		Subject:   is.Name,
		Issuer:    is.Name,
		PublicKey: is.PublicKey,
		Timestamp: timestamp,
		Signature: is.sign(is.Name, is.PublicKey, timestamp),
	}}
}

// IssueIntermediate certifies subject's key. Both public_key and
// public_key_c carry the intermediate's key.
func (is Issuer) IssueIntermediate(subject string, key sig.PublicKey, timestamp int64) *IntermediateCertificate {
	c := cloneKey(key)
	return &IntermediateCertificate{Certificate: Certificate{
		Subject:    subject,
		Issuer:     is.Name,
		PublicKey:  cloneKey(key),
		PublicKeyC: &c,
		Timestamp:  timestamp,
		Signature:  is.sign(subject, key, timestamp),
	}}
}

// IssueClient certifies a client's key. The certificate's public_key is the
// issuer's key and public_key_c the client's.
func (is Issuer) IssueClient(subject string, key sig.PublicKey, privateKey *big.Int, timestamp int64) *ClientCertificate {
	c := cloneKey(key)
	out := &ClientCertificate{
		PublicKey:  cloneKey(key),
		PrivateKey: cloneInt(privateKey),
		Certificate: Certificate{
			Subject:    subject,
			Issuer:     is.Name,
			PublicKey:  cloneKey(is.PublicKey),
			PublicKeyC: &c,
			Timestamp:  timestamp,
			Signature:  is.sign(subject, key, timestamp),
		},
	}
	return out.Expect(subject)
}
