package locations

// Location es un sitio físico (laboratorio o sede clínica) que participa en
// envíos. La identidad (ID) es inmutable; los campos descriptivos se
// refrescan cada vez que el sitio vuelve a referenciarse.
type Location struct {
	ID             string
	Code           string
	Name           string
	IsLab          bool
	IsClinicalSite bool
}
