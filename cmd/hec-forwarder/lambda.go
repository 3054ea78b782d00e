package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

func newLambdaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as AWS Lambda function handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLambda(cmd.Context(), flags)
		},
	}
}

// runLambda never returns inside the Lambda execution environment.
func runLambda(ctx context.Context, flags *globalFlags) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	a.log.V(1).Info("starting lambda handler", "hec", a.cfg.HEC.URL)
	lambda.Start(a.handler.Invoke)

	return nil
}
