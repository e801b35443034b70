package s2n

import "crypto/cipher"

// CryptoBank is spec §3's "complete set of keys/IVs/sequence counters
// for one epoch of one direction" — the generalization of the teacher's
// flat clientHandshakeKey/clientHandshakeIV/... fields into one reusable
// struct so a Connection can hold active and pending banks per direction
// instead of one hardcoded handshake/application pair.
type CryptoBank struct {
	Suite CipherSuite

	TrafficSecret []byte // TLS1.3 only; nil for legacy CBC/GCM suites
	Key           []byte
	IV            []byte // implicit IV (TLS1.3, TLS1.2 AEAD) or CBC IV material
	MACKey        []byte // legacy CBC suites only

	AEAD cipher.AEAD // nil for RecordCipherBlock suites

	SequenceNum uint64
}

func (b *CryptoBank) IsAEAD() bool { return b.AEAD != nil }

// Wipe zeroes every secret field. Safe to call on a nil bank.
func (b *CryptoBank) Wipe() {
	if b == nil {
		return
	}
	ZeroSlice(b.TrafficSecret)
	ZeroSlice(b.Key)
	ZeroSlice(b.IV)
	ZeroSlice(b.MACKey)
}

// EpochBanks holds the active bank for a direction plus the bank staged
// by the most recent key-update/ChangeCipherSpec that hasn't yet taken
// effect — the "active/pending" split spec §3's Connection data model
// calls for, generalizing the teacher's single always-active key fields.
type EpochBanks struct {
	Active  *CryptoBank
	Pending *CryptoBank
}

// Activate promotes Pending to Active, clearing Pending. Called when a
// ChangeCipherSpec (legacy) or a completed key derivation (1.3) flips
// the epoch.
func (e *EpochBanks) Activate() {
	if e.Active != nil {
		e.Active.Wipe()
	}
	e.Active = e.Pending
	e.Pending = nil
}
