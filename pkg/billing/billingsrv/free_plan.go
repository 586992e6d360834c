package billingsrv

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/jobx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

const JobActivateFreePlan = "billing.activate_free_plan"

type FreePlanPayload struct {
	OrderID       kernel.OrderID       `json:"order_id"`
	TransactionID kernel.TransactionID `json:"transaction_id"`
}

// RegisterJobs wires the billing job handlers into the worker.
func RegisterJobs(c *jobx.Client, s *ActivationService) {
	c.Register(JobActivateFreePlan, s.HandleFreePlanJob)
}

// HandleFreePlanJob activates a zero-total order. A failed activation marks
// the transaction FAILED and is returned so the worker retries it.
func (s *ActivationService) HandleFreePlanJob(ctx context.Context, job *jobx.JobInfo) error {
	p, err := jobx.DecodePayload[FreePlanPayload](job)
	if err != nil {
		return jobx.Permanent(err)
	}
	logger := logx.WithFields(logx.Fields{
		"job_id":         job.ID,
		"order_id":       p.OrderID,
		"transaction_id": p.TransactionID,
	}).WithContext(ctx)

	tx, err := s.repo.FindTransaction(ctx, p.TransactionID)
	if err != nil {
		if errx.IsCode(err, billing.CodeTransactionNotFound) {
			return jobx.Permanent(err)
		}
		return err
	}
	order, err := s.repo.FindOrder(ctx, p.OrderID)
	if err != nil {
		if errx.IsCode(err, billing.CodeOrderNotFound) {
			return jobx.Permanent(err)
		}
		return err
	}
	if tx.OrderID != order.ID || !order.IsFree() {
		return jobx.Permanent(errx.Validation("job does not reference a free order").
			WithDetail("order_id", order.ID.String()))
	}

	_, err = s.Activate(ctx, tx.ID, billing.ActivationInput{
		PaymentDetails: billing.Details{"source": billing.ProviderFree, "job_id": job.ID},
	})
	if err == nil {
		return nil
	}

	if mfErr := s.MarkFailed(ctx, tx.ID, err.Error(), billing.Details{"source": billing.ProviderFree, "job_id": job.ID}); mfErr != nil {
		logger.WithError(mfErr).Error("Failed to record free plan activation failure")
	}
	if errx.IsCode(err, billing.CodeTransactionRefunded) {
		return jobx.Permanent(err)
	}
	return err
}
