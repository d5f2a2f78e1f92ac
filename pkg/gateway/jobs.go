package gateway

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ryan12324/openassistant/pkg/authx"
	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

func caller(c *fiber.Ctx) (*kernel.AuthContext, error) {
	ac, ok := authx.FromContext(c)
	if !ok {
		return nil, gatewayErrors.New(ErrUnauthenticated)
	}
	return ac, nil
}

// getJob returns a job owned by the caller. Admins may read any job. Jobs of
// other users look exactly like missing ones.
func (h *Handler) getJob(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	job, err := h.deps.Jobs.GetJob(c.UserContext(), id)
	if err != nil {
		if e, ok := err.(*errx.Error); ok && e.HTTPStatus == fiber.StatusNotFound {
			return gatewayErrors.New(ErrJobNotFound).WithDetail("job_id", id)
		}
		return err
	}
	if job.UserID != ac.UserID && !ac.IsAdmin() {
		return gatewayErrors.New(ErrJobNotFound).WithDetail("job_id", id)
	}
	return c.JSON(job)
}

func (h *Handler) listJobs(c *fiber.Ctx) error {
	ac, err := caller(c)
	if err != nil {
		return err
	}

	jobs, err := h.deps.Jobs.List(c.UserContext(), jobx.ListFilter{
		Status: jobx.JobStatus(c.Query("status")),
		UserID: ac.UserID,
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*jobx.Job{}
	}
	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}
