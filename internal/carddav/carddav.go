// Package carddav is the gateway's read-only address-book surface: one
// address book per upstream address type, each vCard rendered on demand
// from a live upstream address record. There is no local address-book
// state; every GET/PROPFIND/REPORT re-fetches from the upstream, and
// every write returns 403.
package carddav

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/inform-gateway/caldav-bridge/internal/gwerror"
	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

// addressBookInfo is the static display metadata for one address book.
type addressBookInfo struct {
	Name        string
	Description string
}

var addressBooks = map[string]addressBookInfo{
	"customer": {Name: "Customers", Description: "Customer addresses from INFORM"},
	"supplier": {Name: "Suppliers", Description: "Supplier addresses from INFORM"},
	"employee": {Name: "Employees", Description: "Employee addresses from INFORM"},
	"other":    {Name: "Other", Description: "Other addresses from INFORM"},
}

// AddressBookTypes returns the fixed, ordered list of address-book types
// this gateway serves.
func AddressBookTypes() []string {
	return []string{"customer", "supplier", "employee", "other"}
}

// Info returns the display metadata for an address-book type, or false if
// addressType isn't one this gateway serves.
func Info(addressType string) (addressBookInfo, bool) {
	info, ok := addressBooks[addressType]
	return info, ok
}

// Card is a rendered address object: its vCard body and the ETag computed
// from that body.
type Card struct {
	Key  string
	VCF  string
	ETag string
}

// Directory adapts the upstream client to the carddav surface: list/get of
// address objects, scoped to the company the configured credentials
// resolve to.
type Directory struct {
	upstream *upstream.Client
	company  string
}

// NewDirectory constructs a Directory. company is the upstream company
// name backing every address lookup, resolved once at startup via
// ResolveCompany.
func NewDirectory(client *upstream.Client, company string) *Directory {
	return &Directory{upstream: client, company: company}
}

// ResolveCompany fetches the first available company name. Called once at
// startup rather than lazily, since this gateway has no per-request
// company selection.
func ResolveCompany(ctx context.Context, client *upstream.Client) (string, error) {
	companies, err := client.GetCompanies(ctx)
	if err != nil {
		return "", err
	}
	if len(companies) == 0 {
		return "", gwerror.New(gwerror.KindUpstreamServer, "no companies available upstream")
	}
	return companies[0].CompanyName, nil
}

// List renders every address in the given address book as a vCard.
func (d *Directory) List(ctx context.Context, addressType string) ([]Card, error) {
	if _, ok := addressBooks[addressType]; !ok {
		return nil, gwerror.New(gwerror.KindNotFound, "unknown address book")
	}
	resp, err := d.upstream.GetAddresses(ctx, d.company, 0, 1000, addressType, "")
	if err != nil {
		return nil, err
	}

	cards := make([]Card, 0, len(resp.Addresses))
	for i := range resp.Addresses {
		if resp.Addresses[i].Key == "" {
			continue
		}
		vcf, err := addressToVCard(&resp.Addresses[i])
		if err != nil {
			continue // skip unrenderable records, keep the rest
		}
		cards = append(cards, Card{Key: resp.Addresses[i].Key, VCF: vcf, ETag: etagOf(vcf)})
	}
	return cards, nil
}

// Get fetches and renders a single address object, verifying its
// addressType matches the requested address book.
func (d *Directory) Get(ctx context.Context, addressType, key string) (*Card, error) {
	if _, ok := addressBooks[addressType]; !ok {
		return nil, gwerror.New(gwerror.KindNotFound, "unknown address book")
	}
	addr, err := d.upstream.GetAddress(ctx, d.company, key, nil)
	if err != nil {
		return nil, err
	}
	if addr.AddressType != addressType {
		return nil, gwerror.New(gwerror.KindNotFound, "address type mismatch")
	}
	vcf, err := addressToVCard(addr)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindInternal, "render vcard", err)
	}
	return &Card{Key: key, VCF: vcf, ETag: etagOf(vcf)}, nil
}

func etagOf(vcf string) string {
	sum := strconv.FormatUint(fnv1a(vcf), 16)
	return `"` + sum + `"`
}

// fnv1a is a tiny non-cryptographic content hash, sufficient for a
// read-only ETag that only needs to change when the rendered vCard does.
func fnv1a(s string) uint64 {
	const offset, prime = 14695981039346656037, 1099511628211
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// addressToVCard renders one upstream address record as a vCard 3.0 card.
func addressToVCard(addr *upstream.Address) (string, error) {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "3.0")
	card.SetValue(vcard.FieldUID, addr.Key)

	fn := addr.Key
	var post *upstream.PostAddress
	if len(addr.PostAddresses) > 0 {
		post = &addr.PostAddresses[0].PostAddress
		if post.Line1 != "" {
			fn = post.Line1
		}
	}
	card.SetValue(vcard.FieldFormattedName, fn)
	card.AddName(&vcard.Name{FamilyName: fn})
	card.SetValue(vcard.FieldOrganization, fn)

	if addr.AddressType != "" {
		card.SetValue(vcard.FieldCategories, strings.ToUpper(addr.AddressType))
	}

	if post != nil {
		city, postalCode := splitZipCity(post.ZipCodeAndCity)
		if post.Street != "" || city != "" || postalCode != "" {
			card.Add(vcard.FieldAddress, &vcard.Field{
				Value:  ";;" + post.Street + ";" + city + ";;" + postalCode + ";",
				Params: vcard.Params{vcard.ParamType: []string{"WORK"}},
			})
		}
		if post.Phone != "" {
			card.Add(vcard.FieldTelephone, &vcard.Field{Value: post.Phone, Params: vcard.Params{vcard.ParamType: []string{"WORK"}}})
		}
		if post.Mobile != "" {
			card.Add(vcard.FieldTelephone, &vcard.Field{Value: post.Mobile, Params: vcard.Params{vcard.ParamType: []string{"CELL"}}})
		}
		if post.Fax != "" {
			card.Add(vcard.FieldTelephone, &vcard.Field{Value: post.Fax, Params: vcard.Params{vcard.ParamType: []string{"FAX"}}})
		}
		if post.Email != "" {
			card.Add(vcard.FieldEmail, &vcard.Field{Value: post.Email, Params: vcard.Params{vcard.ParamType: []string{"WORK"}}})
		}
		if post.Website != "" {
			card.SetValue(vcard.FieldURL, post.Website)
		}
	}

	if addr.Note != "" {
		card.SetValue(vcard.FieldNote, addr.Note)
	}
	if addr.TaxID != "" {
		card["X-TAXID"] = []*vcard.Field{{Value: addr.TaxID}}
	}
	if addr.ClientNumber != "" {
		card["X-CLIENTNUMBER"] = []*vcard.Field{{Value: addr.ClientNumber}}
	}

	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func splitZipCity(zipCity string) (city, postalCode string) {
	zipCity = strings.TrimSpace(zipCity)
	if zipCity == "" {
		return "", ""
	}
	parts := strings.SplitN(zipCity, " ", 2)
	if len(parts) == 2 {
		return parts[1], parts[0]
	}
	return zipCity, ""
}
