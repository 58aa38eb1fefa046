package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusforms/collect/internal/models"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderForms(t *testing.T) {
	list := []*models.Form{
		{ID: 1, JrFormID: "household", JrVersion: "2024061201", DisplayName: "Household survey", BASE64RSAPublicKey: "MIIB"},
		{ID: 12, JrFormID: "water_points", DisplayName: "Water points"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderForms(&buf, list))
	newGoldie(t).Assert(t, "forms", buf.Bytes())
}

func TestRenderInstances(t *testing.T) {
	list := []*models.Instance{
		{ID: 1, JrFormID: "household", JrVersion: "2024061201", DisplayName: "Ama Mensah",
			Status: models.StatusComplete, CanEditWhenComplete: true, GeometryType: "Point",
			LastStatusChangeDate: time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)},
		{ID: 2, JrFormID: "household", JrVersion: "2024061201", DisplayName: "Draft",
			Status: models.StatusIncomplete, CanEditWhenComplete: true,
			LastStatusChangeDate: time.Date(2024, 6, 12, 10, 5, 0, 0, time.UTC)},
		{ID: 14, JrFormID: "water_points", DisplayName: "Borehole 7",
			Status: models.StatusSubmissionFailed, GeometryType: "LineString"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderInstances(&buf, list))
	newGoldie(t).Assert(t, "instances", buf.Bytes())
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderForms(&buf, nil))
	require.NoError(t, renderInstances(&buf, nil))
	assert.Equal(t, "no forms\nno instances\n", buf.String())
}
