// Package mocks provides gomock implementations of the resultx interfaces.
//
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	broker := mocks.NewMockBroker(ctrl)
//	broker.EXPECT().Send(gomock.Any(), gomock.Any()).Return("task-id", nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=broker_mock.go github.com/mohans/resultx/resultx Broker
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=store_mock.go github.com/mohans/resultx/resultx Store
