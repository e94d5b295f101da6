package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pdir/immobilienscout-api/pkg/pagination"
)

// Envelope and element keys of the offer API.
const (
	keyRealEstates  = "realestates.realEstates"
	keyPaging       = "Paging"
	keyList         = "realEstateList"
	keyElement      = "realEstateElement"
	keyID           = "@id"
	keyXSIType      = "@xsi.type"
	keyState        = "realEstateState"
	keyType         = "type"
	detailKeyPrefix = "realestates."

	// typePrefix is stripped from an element's @xsi.type to derive its type.
	typePrefix = "offerlistelement:Offer"

	// StateInactive marks listings removed by the active-only filter.
	StateInactive = "INACTIVE"
)

// ListOptions selects one page of the caller's listings.
type ListOptions struct {
	// PageNumber is 1-based; zero means 1.
	PageNumber int

	// PageSize is the number of elements per page; zero means DefaultPageSize.
	PageSize int

	// IncludeArchived also returns archived listings.
	IncludeArchived bool

	// PublishChannel restricts the result to one publish channel, e.g. "IS24".
	PublishChannel string
}

// AllOptions controls ListAll.
type AllOptions struct {
	// WithDetails replaces each element by its full detail record.
	WithDetails bool

	// IncludeArchived also returns archived listings.
	IncludeArchived bool

	// ActiveOnly drops elements whose realEstateState is INACTIVE.
	ActiveOnly bool
}

// Link is a hypermedia reference inside an envelope.
type Link struct {
	Href string `json:"@xlink.href"`
}

// Paging is the paging metadata of a listing envelope.
type Paging struct {
	PageNumber    int   `json:"pageNumber"`
	PageSize      int   `json:"pageSize"`
	NumberOfPages int   `json:"numberOfPages"`
	NumberOfHits  int   `json:"numberOfHits"`
	Next          *Link `json:"next,omitempty"`
	Previous      *Link `json:"previous,omitempty"`
}

// HasNext reports whether the service linked a following page.
func (p Paging) HasNext() bool {
	return p.Next != nil && p.Next.Href != ""
}

// Envelope is one page of listings together with its paging metadata.
type Envelope struct {
	Paging Paging

	// Elements is nil when the page carried no element collection.
	Elements []Document

	// Raw is the undecoded realestates.realEstates object.
	Raw Document
}

func (o ListOptions) resource() (string, error) {
	if o.PageNumber == 0 {
		o.PageNumber = 1
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageNumber < 1 || o.PageSize < 1 {
		return "", fmt.Errorf("%w: page %d, size %d", ErrInvalidPaging, o.PageNumber, o.PageSize)
	}

	resource := fmt.Sprintf("user/me/realestate?pagenumber=%d&pagesize=%d&archivedobjectsincluded=%t",
		o.PageNumber, o.PageSize, o.IncludeArchived)
	if o.PublishChannel != "" {
		resource += "&publishchannel=" + url.QueryEscape(o.PublishChannel)
	}
	return resource, nil
}

// ListPageEnvelope fetches one page of listings with its paging metadata.
// It returns nil when the service answered without a listing envelope.
func (c *Client) ListPageEnvelope(ctx context.Context, opts ListOptions) (*Envelope, error) {
	resource, err := opts.resource()
	if err != nil {
		return nil, err
	}

	doc, err := c.Get(ctx, resource)
	if err != nil {
		return nil, err
	}

	raw := doc.Map(keyRealEstates)
	if raw == nil {
		return nil, nil
	}

	env := &Envelope{Raw: raw}
	if paging := raw.Map(keyPaging); paging != nil {
		if err := paging.Decode(&env.Paging); err != nil {
			return nil, &APIError{Resource: "user/me/realestate", StatusCode: 200, Class: ErrorClassDecode, Err: err}
		}
	}
	if list := raw.Map(keyList); list != nil {
		env.Elements = documentList(list[keyElement])
	}

	return env, nil
}

// ListPage fetches one page of listings and returns only its elements.
// It returns nil when the page carried no element collection.
func (c *Client) ListPage(ctx context.Context, opts ListOptions) ([]Document, error) {
	env, err := c.ListPageEnvelope(ctx, opts)
	if err != nil || env == nil {
		return nil, err
	}
	return env.Elements, nil
}

// ListAll fetches every page of the caller's listings, in ascending page
// order, and optionally filters and enriches them. It returns nil when the
// service reported no element collection. Any failing request fails the
// whole call.
func (c *Client) ListAll(ctx context.Context, opts AllOptions) ([]Document, error) {
	start := time.Now()

	first, err := c.ListPageEnvelope(ctx, ListOptions{
		PageNumber:      1,
		PageSize:        DefaultPageSize,
		IncludeArchived: opts.IncludeArchived,
	})
	if err != nil {
		return nil, fmt.Errorf("list first page: %w", err)
	}
	if first == nil {
		return nil, nil
	}

	estates := first.Elements
	if first.Paging.HasNext() {
		estates, err = pagination.Collect(ctx, first.Elements, first.Paging.NumberOfPages,
			func(ctx context.Context, page int) ([]Document, error) {
				return c.ListPage(ctx, ListOptions{
					PageNumber:      page,
					PageSize:        DefaultPageSize,
					IncludeArchived: opts.IncludeArchived,
				})
			})
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
	}

	// No element collection on page 1 and nothing on later pages is absence.
	if estates == nil || (first.Elements == nil && len(estates) == 0) {
		return nil, nil
	}

	total := len(estates)
	if opts.ActiveOnly {
		estates = FilterActive(estates)
	}

	if opts.WithDetails {
		if estates, err = c.withDetails(ctx, estates); err != nil {
			return nil, err
		}
	}

	c.logger.Info().
		Int("pages", max(first.Paging.NumberOfPages, 1)).
		Int("elements", total).
		Int("returned", len(estates)).
		Bool("with_details", opts.WithDetails).
		Dur("duration", time.Since(start)).
		Msg("Listed real estates")

	return estates, nil
}

// withDetails replaces every element by the typed payload of its detail record.
func (c *Client) withDetails(ctx context.Context, estates []Document) ([]Document, error) {
	detailed := make([]Document, len(estates))
	for i, estate := range estates {
		id, err := ElementID(estate)
		if err != nil {
			return nil, err
		}
		typ := RealEstateType(estate.String(keyXSIType))

		detail, err := c.GetRealEstate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get details of %d: %w", id, err)
		}
		if detail == nil {
			return nil, fmt.Errorf("%w: no record for %d", ErrMissingDetail, id)
		}
		detail[keyType] = typ

		payload := detail.Map(detailKeyPrefix + typ)
		if payload == nil {
			return nil, fmt.Errorf("%w: %d has no %q object", ErrMissingDetail, id, detailKeyPrefix+typ)
		}
		detailed[i] = payload
	}
	return detailed, nil
}

// GetRealEstate fetches the full record of one listing.
func (c *Client) GetRealEstate(ctx context.Context, id int64) (Document, error) {
	return c.Get(ctx, fmt.Sprintf("user/me/realestate/%d", id))
}

// GetAttachments fetches the attachment list of one listing.
func (c *Client) GetAttachments(ctx context.Context, id int64) (Document, error) {
	return c.Get(ctx, fmt.Sprintf("user/me/realestate/%d/attachment", id))
}

// GetContact fetches one contact record.
func (c *Client) GetContact(ctx context.Context, id int64) (Document, error) {
	return c.Get(ctx, fmt.Sprintf("user/me/contact/%d", id))
}

// FilterActive returns the elements whose realEstateState is not INACTIVE,
// preserving order. Elements without a state are kept.
func FilterActive(estates []Document) []Document {
	if estates == nil {
		return nil
	}
	active := make([]Document, 0, len(estates))
	for _, estate := range estates {
		if estate.String(keyState) == StateInactive {
			continue
		}
		active = append(active, estate)
	}
	return active
}

// RealEstateType derives the listing type from an @xsi.type tag:
// "offerlistelement:OfferApartmentRent" becomes "apartmentRent".
// Only a leading "offerlistelement:Offer" is stripped; the literal is left
// in place anywhere else in the tag.
func RealEstateType(xsiType string) string {
	typ := strings.TrimPrefix(xsiType, typePrefix)
	r, size := utf8.DecodeRuneInString(typ)
	if r == utf8.RuneError {
		return typ
	}
	return string(unicode.ToLower(r)) + typ[size:]
}

// ElementID parses the @id of a listing element, given as a decimal string or number.
func ElementID(estate Document) (int64, error) {
	switch v := estate[keyID].(type) {
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, v)
		}
		return id, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidID, v)
		}
		return int64(v), nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, v)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidID, keyID)
	}
}

// AttachmentFilename returns the third path segment of an attachment URL,
// e.g. "foo" for "https://host/path/foo/bar.jpg". No network access.
func AttachmentFilename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAttachmentURL, err)
	}

	parts := strings.Split(u.Path, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("%w: %q has no filename segment", ErrInvalidAttachmentURL, rawURL)
	}
	return parts[2], nil
}
