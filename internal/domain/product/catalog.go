package product

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DecodeCatalog parses a JSON array of {"id","name","price","image"}
// objects. Prices may be numbers or numeric strings and are parsed exactly.
func DecodeCatalog(data []byte) ([]Product, error) {
	var products []Product
	d := jx.DecodeBytes(data)
	err := d.Arr(func(d *jx.Decoder) error {
		var p Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Int64()
			case "name":
				p.Name, err = d.Str()
			case "image":
				p.Image, err = d.Str()
			case "price":
				p.Price, err = DecodePrice(d)
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		}); err != nil {
			return errors.Wrapf(err, "product %d", len(products))
		}
		if p.ID <= 0 || p.Name == "" {
			return errors.Errorf("product %d: id and name are required", len(products))
		}
		if p.Price.IsNegative() {
			return errors.Errorf("product %d: negative price", p.ID)
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode catalog: unexpected data after array")
	}
	return products, nil
}

// DecodePrice reads a price given as a JSON number or a numeric string and
// parses it exactly.
func DecodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		return decimal.Decimal{}, errors.New("expected number or numeric string")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse %q", raw)
	}
	return v, nil
}
