package protoreg

import (
	"cmp"
	"hash/fnv"
	"slices"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// maxHashedNumber bounds hashed field numbers so they stay within two-byte
// tags.
const maxHashedNumber = 31767

// allocateFieldNumbers numbers record fields by hashing their names, so adding
// or removing an entity field leaves the numbers of the others unchanged.
// Collisions probe upward in name order and skip the reserved range.
func allocateFieldNumbers(fields []*protobuilder.FieldBuilder) {
	order := slices.Clone(fields)
	slices.SortFunc(order, func(a, b *protobuilder.FieldBuilder) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	used := make(map[protowire.Number]bool, len(fields))
	for _, fb := range order {
		n := hashNumber(string(fb.Name()))
		for used[n] || reserved(n) {
			n = n%maxHashedNumber + 1
		}
		used[n] = true
		fb.SetNumber(protoreflect.FieldNumber(n))
	}
}

func hashNumber(name string) protowire.Number {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return protowire.Number(h.Sum32()%maxHashedNumber) + 1
}

func reserved(n protowire.Number) bool {
	return n >= protowire.FirstReservedNumber && n <= protowire.LastReservedNumber
}
