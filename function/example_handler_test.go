package function_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"

	"github.com/zakharovvi/hec-forwarder/function"
	"github.com/zakharovvi/hec-forwarder/hec"
	"github.com/zakharovvi/hec-forwarder/payload"
)

func ExampleHandler_Handle() {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"Success","code":0}`))
	}))
	defer collector.Close()

	ctx := context.Background()
	client, err := hec.NewClient(ctx, collector.URL, "00000000-0000-0000-0000-000000000000")
	if err != nil {
		log.Panic(err)
	}
	handler := function.New(ctx, payload.NewNormalizer(ctx), client)

	result, err := handler.Handle(ctx, `{"records":[{"value":"eyJhIjoxfQ=="},{"value":"eyJiIjoyfQ=="}]}`)
	if err != nil {
		log.Panic(err)
	}
	fmt.Println(result.Status, result.EventsSent)
	// Output: success 2
}
