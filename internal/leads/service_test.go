package leads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }
	return svc, repo
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - scores and normalizes", func(t *testing.T) {
		svc, _ := newTestService()
		l, err := svc.Create(ctx, "t1", Lead{
			FirstName: " Ada ",
			Email:     " Ada@Example.COM ",
			JobTitle:  "CTO",
			Company:   "Analytical Engines",
			Region:    "us",
			Phone:     "(650) 253-0000",
		})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", l.Email)
		assert.Equal(t, "US", l.Region)
		assert.Equal(t, "+16502530000", l.Phone)
		assert.Equal(t, 60, l.Score)
		assert.True(t, l.IsOutreachReady)
		assert.Equal(t, EmailStatusValid, l.EmailStatus)
		assert.NotEmpty(t, l.ID)
	})

	t.Run("Error - requires tenant", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.Create(ctx, "", Lead{Email: "a@b.co"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Error - empty lead", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.Create(ctx, "t1", Lead{Company: "x"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Success - generated leads stay in range", func(t *testing.T) {
		svc, _ := newTestService()
		f := gofakeit.New(42)
		for i := 0; i < 50; i++ {
			l, err := svc.Create(ctx, "t1", Lead{
				FirstName: f.FirstName(),
				LastName:  f.LastName(),
				Email:     f.Email(),
				Company:   f.Company(),
				JobTitle:  f.JobTitle(),
				Region:    f.RandomString([]string{"US", "FR", "DE", "BR", ""}),
			})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, l.Score, 0)
			assert.LessOrEqual(t, l.Score, MaxScore)
			assert.Equal(t, IsOutreachReady(l.Score), l.IsOutreachReady)
		}
	})
}

func TestService_UpdateRescores(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	l, err := svc.Create(ctx, "t1", Lead{FirstName: "Bo", Email: "bo@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 15, l.Score)
	assert.False(t, l.IsOutreachReady)

	title, company, region := "Director of Ops", "Initech", "CA"
	l, err = svc.Update(ctx, "t1", l.ID, Patch{JobTitle: &title, Company: &company, Region: &region})
	require.NoError(t, err)
	assert.Equal(t, 60, l.Score)
	assert.True(t, l.IsOutreachReady)

	got, err := svc.Get(ctx, "t1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Score, "score must be persisted")
}

func TestService_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	l, err := svc.Create(ctx, "t1", Lead{Email: "x@example.com"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "t2", l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(ctx, "t2", ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_ImportCSV(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	csv := strings.Join([]string{
		"Email,First_Name,Last_Name,Company,Title,Country",
		"ceo@acme.com,Wile,Coyote,Acme,CEO,US",
		"broken-address,Road,Runner,Acme,Engineer,US",
		"pm@globex.com,Hank,Scorpio,Globex,Product Manager,FR",
	}, "\n")

	res, err := svc.ImportCSV(ctx, "t1", strings.NewReader(csv), "upload")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Equal(t, "email", res.Errors[0].Field)

	ready := true
	list, err := repo.List(ctx, "t1", ListFilter{OutreachReady: &ready})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ceo@acme.com", list[0].Email)
	assert.Equal(t, "upload", list[0].Source)
}

func TestService_ImportCSVReadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - malformed row is reported and skipped", func(t *testing.T) {
		svc, _ := newTestService()
		csv := "email,first_name\na@acme.com,Wi\"le\nb@acme.com,Hank\n"
		res, err := svc.ImportCSV(ctx, "t1", strings.NewReader(csv), "upload")
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalRows)
		assert.Equal(t, 1, res.SuccessCount)
		assert.Equal(t, 1, res.FailureCount)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 2, res.Errors[0].Row)
	})

	t.Run("Error - size limit stops the import", func(t *testing.T) {
		svc, repo := newTestService()
		var b strings.Builder
		b.WriteString("email,first_name\n")
		for i := 0; i < 100; i++ {
			b.WriteString("lead@acme.com,Wile\n")
		}
		body := http.MaxBytesReader(httptest.NewRecorder(), io.NopCloser(strings.NewReader(b.String())), 64)

		type out struct {
			res ImportResult
			err error
		}
		done := make(chan out, 1)
		go func() {
			res, err := svc.ImportCSV(ctx, "t1", body, "upload")
			done <- out{res, err}
		}()

		select {
		case o := <-done:
			var tooLarge *http.MaxBytesError
			require.Error(t, o.err)
			assert.True(t, errors.As(o.err, &tooLarge), o.err)
			assert.NotErrorIs(t, o.err, ErrInvalidArgument)
			assert.LessOrEqual(t, o.res.TotalRows, 3)
			list, err := repo.List(ctx, "t1", ListFilter{})
			require.NoError(t, err)
			assert.Len(t, list, o.res.SuccessCount)
		case <-time.After(3 * time.Second):
			t.Fatal("import did not stop at the size limit")
		}
	})
}

func TestService_ImportCSVRejectsUnknownHeader(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ImportCSV(context.Background(), "t1", strings.NewReader("foo,bar\n1,2\n"), "upload")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
