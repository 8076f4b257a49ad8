package gateway

import (
	"net/http"
	"strconv"

	"github.com/samber/mo"

	"github.com/inform-gateway/caldav-bridge/internal/carddav"
	"github.com/inform-gateway/caldav-bridge/internal/webdavxml"
)

// Resolver resolves a single requested property name against env, exactly
// as propfind_resolvers.go's per-property resolver table. The tables below
// are keyed by the property's local name only; the namespace of a
// requested property is not consulted when looking up its resolver.
type Resolver func(env *propEnv) mo.Result[webdavxml.Property]

// propEnv carries everything a resolver needs for one resource.
type propEnv struct {
	res      Resource
	object   *Object
	card     *carddav.Card
	ownerKey string
}

func ok(p webdavxml.Property) mo.Result[webdavxml.Property] {
	return mo.Ok(p)
}

func notFound() mo.Result[webdavxml.Property] {
	return mo.Err[webdavxml.Property](errPropNotFound)
}

var errPropNotFound = errNotFoundSentinel{}

type errNotFoundSentinel struct{}

func (errNotFoundSentinel) Error() string { return "property not found" }

// principalResolvers answers PROPFIND on the synthetic principal.
var principalResolvers = map[string]Resolver{
	"resourcetype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSDAV, Name: "resourcetype", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSDAV, Name: "collection"},
			{Namespace: webdavxml.NSDAV, Name: "principal"},
		}})
	},
	"current-user-principal": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSDAV, "current-user-principal", PrincipalHref()))
	},
	"calendar-home-set": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSCalDAV, "calendar-home-set", CalendarHomeSetHref()))
	},
	"addressbook-home-set": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSCardDAV, "addressbook-home-set", AddressbookHomeSetHref()))
	},
}

// homeSetResolvers answers PROPFIND on the calendar-home-set resource.
var homeSetResolvers = map[string]Resolver{
	"resourcetype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSDAV, Name: "resourcetype", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSDAV, Name: "collection"},
		}})
	},
	"displayname": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.TextProp("displayname", "Calendars"))
	},
	"current-user-principal": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSDAV, "current-user-principal", PrincipalHref()))
	},
	"calendar-home-set": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSCalDAV, "calendar-home-set", CalendarHomeSetHref()))
	},
}

// calendarResolvers answers PROPFIND on the single calendar collection.
var calendarResolvers = map[string]Resolver{
	"resourcetype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSDAV, Name: "resourcetype", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSDAV, Name: "collection"},
			{Namespace: webdavxml.NSCalDAV, Name: "calendar"},
		}})
	},
	"displayname": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.TextProp("displayname", "Calendar"))
	},
	"current-user-principal": homeSetResolvers["current-user-principal"],
	"calendar-home-set":      homeSetResolvers["calendar-home-set"],
	"supported-calendar-component-set": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSCalDAV, Name: "supported-calendar-component-set", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSCalDAV, Name: "comp", Attrs: map[string]string{"name": "VEVENT"}},
		}})
	},
}

// addressbookHomeSetResolvers answers PROPFIND on the addressbook-home-set
// resource: a plain collection listing one child per upstream address type.
var addressbookHomeSetResolvers = map[string]Resolver{
	"resourcetype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSDAV, Name: "resourcetype", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSDAV, Name: "collection"},
		}})
	},
	"displayname": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.TextProp("displayname", "Address Books"))
	},
	"current-user-principal": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSDAV, "current-user-principal", PrincipalHref()))
	},
	"addressbook-home-set": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(hrefProp(webdavxml.NSCardDAV, "addressbook-home-set", AddressbookHomeSetHref()))
	},
}

// addressbookResolvers answers PROPFIND on a single address book collection
// (one per upstream address type).
var addressbookResolvers = map[string]Resolver{
	"resourcetype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSDAV, Name: "resourcetype", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSDAV, Name: "collection"},
			{Namespace: webdavxml.NSCardDAV, Name: "addressbook"},
		}})
	},
	"displayname": func(env *propEnv) mo.Result[webdavxml.Property] {
		info, ok2 := carddav.Info(env.res.AddressBookType)
		if !ok2 {
			return notFound()
		}
		return ok(webdavxml.TextProp("displayname", info.Name))
	},
	"addressbook-description": func(env *propEnv) mo.Result[webdavxml.Property] {
		info, ok2 := carddav.Info(env.res.AddressBookType)
		if !ok2 {
			return notFound()
		}
		return ok(webdavxml.Property{Namespace: webdavxml.NSCardDAV, Name: "addressbook-description", Text: info.Description})
	},
	"current-user-principal": addressbookHomeSetResolvers["current-user-principal"],
	"addressbook-home-set":   addressbookHomeSetResolvers["addressbook-home-set"],
	"supported-address-data": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.Property{Namespace: webdavxml.NSCardDAV, Name: "supported-address-data", Children: []webdavxml.Property{
			{Namespace: webdavxml.NSCardDAV, Name: "address-data-type", Attrs: map[string]string{"content-type": "text/vcard", "version": "3.0"}},
		}})
	},
}

// addressObjectResolvers answers PROPFIND on a single address object.
var addressObjectResolvers = map[string]Resolver{
	"getetag": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.card == nil {
			return notFound()
		}
		return ok(webdavxml.TextProp("getetag", env.card.ETag))
	},
	"getcontentlength": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.card == nil {
			return notFound()
		}
		return ok(webdavxml.TextProp("getcontentlength", strconv.Itoa(len(env.card.VCF))))
	},
	"getcontenttype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.TextProp("getcontenttype", "text/vcard"))
	},
	"address-data": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.card == nil {
			return notFound()
		}
		return ok(webdavxml.Property{Namespace: webdavxml.NSCardDAV, Name: "address-data", Text: env.card.VCF})
	},
}

// objectResolvers answers PROPFIND on a single calendar object resource.
var objectResolvers = map[string]Resolver{
	"getetag": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.object == nil {
			return notFound()
		}
		return ok(webdavxml.TextProp("getetag", env.object.ETag))
	},
	"getcontentlength": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.object == nil {
			return notFound()
		}
		return ok(webdavxml.TextProp("getcontentlength", strconv.Itoa(len(env.object.ICS))))
	},
	"getcontenttype": func(_ *propEnv) mo.Result[webdavxml.Property] {
		return ok(webdavxml.TextProp("getcontenttype", "text/calendar"))
	},
	"getlastmodified": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.object == nil || env.object.Modified.IsZero() {
			return notFound()
		}
		return ok(webdavxml.TextProp("getlastmodified", env.object.Modified.UTC().Format(http.TimeFormat)))
	},
	"calendar-data": func(env *propEnv) mo.Result[webdavxml.Property] {
		if env.object == nil {
			return notFound()
		}
		return ok(webdavxml.Property{Namespace: webdavxml.NSCalDAV, Name: "calendar-data", Text: env.object.ICS})
	},
}

func hrefProp(ns, name, href string) webdavxml.Property {
	return webdavxml.Property{Namespace: ns, Name: name, Children: []webdavxml.Property{
		{Namespace: webdavxml.NSDAV, Name: "href", Text: href},
	}}
}

// resolve answers the requested properties for res, emitting them into two
// propstat groups: found (200) and not-found (404).
func resolve(table map[string]Resolver, env *propEnv, requested []webdavxml.Property, allProp bool) []webdavxml.PropStat {
	var foundProps, missingProps []webdavxml.Property

	names := requested
	if allProp {
		names = nil
		for name := range table {
			names = append(names, webdavxml.Property{Name: name})
		}
	}

	for _, req := range names {
		resolver, ok := table[req.Name]
		if !ok {
			if !allProp {
				missingProps = append(missingProps, webdavxml.Property{Namespace: req.Namespace, Name: req.Name})
			}
			continue
		}
		result := resolver(env)
		if !result.IsOk() {
			if !allProp {
				missingProps = append(missingProps, webdavxml.Property{Namespace: req.Namespace, Name: req.Name})
			}
			continue
		}
		foundProps = append(foundProps, result.MustGet())
	}

	var stats []webdavxml.PropStat
	if len(foundProps) > 0 {
		stats = append(stats, webdavxml.PropStat{Status: webdavxml.StatusOK, Props: foundProps})
	}
	if len(missingProps) > 0 {
		stats = append(stats, webdavxml.PropStat{Status: webdavxml.StatusNotFound, Props: missingProps})
	}
	return stats
}
