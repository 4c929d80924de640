package cpu

import "github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

// ZeroCertificate is the two-value witness for a branchless zero test of
// diff: Inv is a candidate inverse and Aux is diff·Inv.
type ZeroCertificate struct {
	Inv field.Element
	Aux field.Element
}

// CertifyZero computes the honest certificate: Inv = diff^-1 and Aux = 1
// when diff is non-zero, both zero otherwise.
func CertifyZero(diff field.Element) ZeroCertificate {
	if diff.IsZero() {
		return ZeroCertificate{Inv: field.Zero, Aux: field.Zero}
	}
	return ZeroCertificate{Inv: diff.Inverse(), Aux: field.One}
}

// ZeroTestResiduals returns the two constraint values that must vanish:
// diff·inv - aux and diff·(1 - aux). Together they force aux to be 0 exactly
// when diff is 0 and 1 otherwise.
func ZeroTestResiduals(diff, inv, aux field.Element) (field.Element, field.Element) {
	return diff.Mul(inv).Sub(aux), diff.Mul(field.One.Sub(aux))
}

// BoundaryFlag is 1 exactly when the tested value is zero
func BoundaryFlag(aux field.Element) field.Element {
	return field.One.Sub(aux)
}
