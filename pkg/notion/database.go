package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// defaultPageSize is Notion's maximum query page size.
const defaultPageSize = 100

// QueryAll walks a database query through pagination and returns every
// matching page. The Client throttles the underlying calls.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	req := &notionapi.DatabaseQueryRequest{PageSize: defaultPageSize}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		if filter.PageSize > 0 {
			req.PageSize = filter.PageSize
		}
	}

	var all []notionapi.Page
	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			return all, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// QueryActiveTemplates returns the section-template registry pages whose
// Status is Active. Retired templates stay in the database for history but
// never load.
func QueryActiveTemplates(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query active templates")
	}
	return pages, nil
}
