// Package address derives stable hub node addresses from Flair display names.
//
// An address is the MD5 digest of the UTF-8 name, read as a big-endian
// integer, reduced modulo 10^8 and printed in decimal without padding.  Vents
// and pucks are scoped by their room: the first PrefixWidth characters of the
// room's address are prepended to their own hash so that two "Vent 1"s in
// different rooms do not collide.
//
// Addresses must stay byte-identical between releases, the hub keys its node
// database on them.
package address

import (
	"crypto/md5"
	"math/big"
)

// Address identifies a node within one account's address space
type Address string

// PrefixWidth is the number of characters of the parent address used to scope
// a child address
const PrefixWidth = 4

var modulus = big.NewInt(100000000)

func (a Address) String() string {
	return string(a)
}

// Prefix returns the scoping prefix of the address
func (a Address) Prefix() string {
	s := string(a)
	if len(s) <= PrefixWidth {
		return s
	}

	return s[:PrefixWidth]
}

// Derive returns the address for a top level resource (structure or room)
func Derive(name string) Address {
	sum := md5.Sum([]byte(name))

	n := new(big.Int).SetBytes(sum[:])
	n.Mod(n, modulus)

	return Address(n.String())
}

// DeriveChild returns the address of a resource scoped by its parent
func DeriveChild(name string, parent Address) Address {
	return Address(parent.Prefix() + string(Derive(name)))
}
