package gateway

import (
	"io"
	"net/http"

	"github.com/inform-gateway/caldav-bridge/internal/carddav"
	"github.com/inform-gateway/caldav-bridge/internal/gwerror"
	"github.com/inform-gateway/caldav-bridge/internal/webdavxml"
)

// handleAddressbookHomeSet answers PROPFIND on the addressbook-home-set
// collection. Its children (one per upstream address type) are listed
// the same way the calendar collection lists objects at Depth:1.
func (h *Handler) handleAddressbookHomeSet(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, REPORT")
		return nil
	case "PROPFIND":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
		}
		props, allProp, err := webdavxml.ParsePropNames(body)
		if err != nil {
			return gwerror.Wrap(gwerror.KindProtocol, "parse PROPFIND body", err)
		}

		env := &propEnv{res: Resource{Type: ResourceAddressbookHomeSet}}
		responses := []webdavxml.Response{
			{Href: AddressbookHomeSetHref(), PropStats: resolve(addressbookHomeSetResolvers, env, props, allProp)},
		}
		if r.Header.Get("Depth") == "1" {
			for _, addressType := range carddav.AddressBookTypes() {
				bookEnv := &propEnv{res: Resource{Type: ResourceAddressbook, AddressBookType: addressType}}
				responses = append(responses, webdavxml.Response{
					Href:      AddressbookHref(addressType),
					PropStats: resolve(addressbookResolvers, bookEnv, props, allProp),
				})
			}
		}
		return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
	case http.MethodPut, http.MethodDelete, "MKCOL":
		return gwerror.New(gwerror.KindForbidden, "addressbook home is read-only")
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on addressbook home")
	}
}

func (h *Handler) handleAddressbook(w http.ResponseWriter, r *http.Request, res Resource) error {
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, REPORT")
		return nil
	case "PROPFIND":
		if r.Header.Get("Depth") == "1" {
			return h.propfindAddressbookDepth1(w, r, res)
		}
		env := &propEnv{res: res}
		return h.propfind(w, r, addressbookResolvers, env)
	case "REPORT":
		return h.addressbookReport(w, r, res)
	case http.MethodPut, http.MethodDelete, "MKCOL":
		return gwerror.New(gwerror.KindForbidden, "address books are read-only")
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on addressbook")
	}
}

func (h *Handler) propfindAddressbookDepth1(w http.ResponseWriter, r *http.Request, res Resource) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
	}
	props, allProp, err := webdavxml.ParsePropNames(body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse PROPFIND body", err)
	}

	selfEnv := &propEnv{res: res}
	responses := []webdavxml.Response{
		{Href: AddressbookHref(res.AddressBookType), PropStats: resolve(addressbookResolvers, selfEnv, props, allProp)},
	}

	cards, err := h.directory.List(r.Context(), res.AddressBookType)
	if err != nil {
		return err
	}
	for i := range cards {
		env := &propEnv{res: Resource{Type: ResourceAddressObject, AddressBookType: res.AddressBookType, AddressKey: cards[i].Key}, card: &cards[i]}
		responses = append(responses, webdavxml.Response{
			Href:      AddressObjectHref(res.AddressBookType, cards[i].Key),
			PropStats: resolve(addressObjectResolvers, env, props, allProp),
		})
	}
	return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
}

// addressbookReport handles addressbook-query/addressbook-multiget. Neither
// RFC 6352 filter evaluation nor the text-match subset is implemented for
// CardDAV: property/text-match filters degrade to "return all" (this
// surface has no time-range analogue). A body carrying hrefs (multiget)
// returns the requested address objects that resolve; any other REPORT
// returns the full listing.
func (h *Handler) addressbookReport(w http.ResponseWriter, r *http.Request, res Resource) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
	}
	props, allProp, err := webdavxml.ParsePropNames(body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse REPORT prop list", err)
	}

	hrefs, _ := webdavxml.ParseHrefs(body)
	if len(hrefs) > 0 {
		var responses []webdavxml.Response
		for _, href := range hrefs {
			target := ParsePath(href)
			if target.Type != ResourceAddressObject {
				continue
			}
			card, err := h.directory.Get(r.Context(), target.AddressBookType, target.AddressKey)
			if err != nil {
				continue
			}
			env := &propEnv{res: target, card: card}
			responses = append(responses, webdavxml.Response{
				Href:      AddressObjectHref(target.AddressBookType, target.AddressKey),
				PropStats: resolve(addressObjectResolvers, env, props, allProp),
			})
		}
		return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
	}

	cards, err := h.directory.List(r.Context(), res.AddressBookType)
	if err != nil {
		return err
	}
	var responses []webdavxml.Response
	for i := range cards {
		env := &propEnv{res: Resource{Type: ResourceAddressObject, AddressBookType: res.AddressBookType, AddressKey: cards[i].Key}, card: &cards[i]}
		responses = append(responses, webdavxml.Response{
			Href:      AddressObjectHref(res.AddressBookType, cards[i].Key),
			PropStats: resolve(addressObjectResolvers, env, props, allProp),
		})
	}
	return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
}

func (h *Handler) handleAddressObject(w http.ResponseWriter, r *http.Request, res Resource) error {
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, GET")
		return nil
	case "PROPFIND":
		card, err := h.directory.Get(r.Context(), res.AddressBookType, res.AddressKey)
		if err != nil {
			return err
		}
		env := &propEnv{res: res, card: card}
		return h.propfind(w, r, addressObjectResolvers, env)
	case http.MethodGet:
		card, err := h.directory.Get(r.Context(), res.AddressBookType, res.AddressKey)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "text/vcard")
		w.Header().Set("ETag", card.ETag)
		_, _ = w.Write([]byte(card.VCF))
		return nil
	case http.MethodPut, http.MethodDelete, "MKCOL":
		return gwerror.New(gwerror.KindForbidden, "address objects are read-only")
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on address object")
	}
}
