// Package mocks provides test doubles for the leadgen interfaces.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/sells-group/leadgen/internal/model"
)

// MockSearcher is a mock type for the Searcher interface.
type MockSearcher struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, criteria
func (_m *MockSearcher) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.RawBusiness, error) {
	ret := _m.Called(ctx, criteria)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []model.RawBusiness
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.SearchCriteria) ([]model.RawBusiness, error)); ok {
		return rf(ctx, criteria)
	}
	if rf, ok := ret.Get(0).(func(context.Context, model.SearchCriteria) []model.RawBusiness); ok {
		r0 = rf(ctx, criteria)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.RawBusiness)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, model.SearchCriteria) error); ok {
		r1 = rf(ctx, criteria)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockSearcher creates a new instance of MockSearcher. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockSearcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSearcher {
	m := &MockSearcher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
