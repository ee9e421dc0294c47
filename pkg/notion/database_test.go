package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func queryReq(match func(*notionapi.DatabaseQueryRequest) bool) any {
	return mock.MatchedBy(match)
}

func TestQueryAll_SinglePage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		// A nil filter still queries at the maximum page size.
		return req.Filter == nil && req.PageSize == defaultPageSize
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "tpl-exec-summary"}, {ID: "tpl-pricing"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-registry", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_WalksPagination(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "tpl-exec-summary"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cur-2"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cur-2")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "tpl-pricing"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cur-3"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cur-3")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "tpl-timeline"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-registry", nil)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, notionapi.ObjectID("tpl-exec-summary"), pages[0].ID)
	assert.Equal(t, notionapi.ObjectID("tpl-pricing"), pages[1].ID)
	assert.Equal(t, notionapi.ObjectID("tpl-timeline"), pages[2].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_PassesFilterSortsAndPageSize(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == "Status" &&
			len(req.Sorts) == 1 && req.Sorts[0].Property == "Name" &&
			req.PageSize == 25
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "tpl-scope"}},
		HasMore: false,
	}, nil).Once()

	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status:   &notionapi.StatusFilterCondition{Equals: "Active"},
		},
		Sorts:    []notionapi.SortObject{{Property: "Name", Direction: notionapi.SortOrderASC}},
		PageSize: 25,
	}

	pages, err := QueryAll(ctx, mc, "db-registry", filter)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	mc.AssertExpectations(t)
}

func TestQueryAll_FirstPageError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-registry", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-registry", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	mc.AssertExpectations(t)
}

func TestQueryAll_LaterPageError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "tpl-exec-summary"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cur-2"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-registry", queryReq(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cur-2")
	})).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-registry", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query all page")
	mc.AssertExpectations(t)
}

func activeFilter(req *notionapi.DatabaseQueryRequest) bool {
	pf, ok := req.Filter.(notionapi.PropertyFilter)
	return ok && pf.Property == "Status" && pf.Status != nil && pf.Status.Equals == "Active"
}

func TestQueryActiveTemplates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-sections", queryReq(activeFilter)).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "tpl-exec-summary"}, {ID: "tpl-pricing"}},
			HasMore: false,
		}, nil).Once()

	pages, err := QueryActiveTemplates(ctx, mc, "db-sections")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryActiveTemplates_NoneActive(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-sections", queryReq(activeFilter)).
		Return(&notionapi.DatabaseQueryResponse{HasMore: false}, nil).Once()

	pages, err := QueryActiveTemplates(ctx, mc, "db-sections")
	require.NoError(t, err)
	assert.Empty(t, pages)
	mc.AssertExpectations(t)
}

func TestQueryActiveTemplates_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-sections", queryReq(activeFilter)).
		Return(nil, assert.AnError).Once()

	pages, err := QueryActiveTemplates(ctx, mc, "db-sections")
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query active templates")
	mc.AssertExpectations(t)
}
