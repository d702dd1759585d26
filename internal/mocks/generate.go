// Package mocks provides mock implementations for testing the dispatch engines.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the core port interfaces. The mocks are generated using go:generate
// directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	pub := mocks.NewMockPublisher(ctrl)
//	pub.EXPECT().Publish(gomock.Any(), "user-1", "jobUpdated", gomock.Any()).Return(true)
package mocks

// Generate mocks for the notification transport and directory ports from the
// internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=core_mocks.go github.com/fleetline/dispatch/internal/core Publisher,UserDirectory
