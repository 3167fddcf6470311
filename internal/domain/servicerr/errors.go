// Package servicerr define la taxonomía de errores compartida por todos los
// módulos del servicio. Los handlers los traducen a códigos HTTP; los services
// los envuelven con contexto usando fmt.Errorf + %w.
package servicerr

import "errors"

var (
	// ErrNotFound: shipment/aliquot/patient referenciado no existe.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStatus: la operación no está permitida en el estado actual.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrDataMissing: falta un campo obligatorio para la transición pedida.
	ErrDataMissing = errors.New("data missing")

	// ErrInvalidFormat: fecha malformada o entrada estructuralmente inválida.
	ErrInvalidFormat = errors.New("invalid data format")

	// ErrAmbiguous: más de un registro remoto coincide con una referencia única.
	ErrAmbiguous = errors.New("ambiguous reference")

	// ErrUnexpected: invariante violada (p.ej. escritura remota confirmada pero
	// la post-condición no se cumple).
	ErrUnexpected = errors.New("unexpected error")
)
