package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestResolve(t *testing.T) {
	userTok := &oauth2.Token{AccessToken: "at-user", RefreshToken: "rt-user"}
	secTok := &oauth2.Token{AccessToken: "at-sec"}

	user := User{
		ID:                "user-1",
		Email:             "jane@example.com",
		CalendarConnected: true,
		Account:           ConnectedAccount{ID: "user-1", Token: userTok},
	}
	tokenless := user
	tokenless.Account.Token = nil

	tests := []struct {
		name          string
		src           *Sources
		wantErr       error
		wantPrimary   []string // calendar ids
		wantSecondary []string // account ids
	}{
		{
			name: "enabled calendars only",
			src: &Sources{
				User: user,
				Calendars: []UserCalendar{
					{AccountID: "user-1", CalendarID: "work", Name: "Work", Enabled: true},
					{AccountID: "user-1", CalendarID: "hobby", Name: "Hobby", Enabled: false},
					{AccountID: "user-1", CalendarID: "family", Name: "Family", Enabled: true},
				},
			},
			wantPrimary: []string{"work", "family"},
		},
		{
			name:        "no enabled calendars falls back to default",
			src:         &Sources{User: user, Calendars: []UserCalendar{{CalendarID: "hobby"}}},
			wantPrimary: []string{DefaultCalendarID},
		},
		{
			name: "calendars of other accounts are ignored",
			src: &Sources{
				User:      user,
				Calendars: []UserCalendar{{AccountID: "acc-2", CalendarID: "team", Enabled: true}},
			},
			wantPrimary: []string{DefaultCalendarID},
		},
		{
			name: "secondary accounts need identity and token",
			src: &Sources{
				User: user,
				Accounts: []ConnectedAccount{
					{ID: "acc-2", ProviderAccountID: "g-2", Token: secTok},
					{ID: "acc-3", ProviderAccountID: "", Token: secTok},
					{ID: "acc-4", ProviderAccountID: "g-4"},
					{ID: "acc-5", ProviderAccountID: "g-5", Token: &oauth2.Token{RefreshToken: "rt"}},
				},
			},
			wantPrimary:   []string{DefaultCalendarID},
			wantSecondary: []string{"acc-2"},
		},
		{
			name: "tokenless primary with secondary",
			src: &Sources{
				User:      tokenless,
				Calendars: []UserCalendar{{CalendarID: "work", Enabled: true}},
				Accounts:  []ConnectedAccount{{ID: "acc-2", ProviderAccountID: "g-2", Token: secTok}},
			},
			wantSecondary: []string{"acc-2"},
		},
		{
			name:    "connected but tokenless",
			src:     &Sources{User: tokenless},
			wantErr: ErrNoUsableToken,
		},
		{
			name:    "nil sources",
			wantErr: ErrNoUsableToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.src, Defaults{})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var primary []string
			for _, cc := range res.Primary {
				assert.Equal(t, RolePrimary, cc.Account.Role)
				assert.Equal(t, "user-1", cc.Account.ID)
				primary = append(primary, cc.CalendarID)
			}
			var secondary []string
			for _, acc := range res.Secondary {
				assert.Equal(t, RoleSecondary, acc.Role)
				secondary = append(secondary, acc.ID)
			}
			assert.Equal(t, tt.wantPrimary, primary)
			assert.Equal(t, tt.wantSecondary, secondary)
		})
	}
}

func TestResolve_SyntheticPrimary(t *testing.T) {
	res, err := Resolve(&Sources{User: User{
		ID:      "user-1",
		Email:   "jane@example.com",
		Account: ConnectedAccount{Token: &oauth2.Token{AccessToken: "at"}},
	}}, Defaults{})
	require.NoError(t, err)
	require.Len(t, res.Primary, 1)

	cc := res.Primary[0]
	assert.Equal(t, DefaultCalendarID, cc.CalendarID)
	assert.Equal(t, "Primary", cc.Name)
	assert.Equal(t, "user-1", cc.Account.ID, "primary account id defaults to the user id")
	assert.Equal(t, "jane@example.com", cc.Account.Email)
}

func TestResolution_Contexts(t *testing.T) {
	res := Resolution{
		Primary: []CalendarContext{{CalendarID: "work"}, {CalendarID: "family"}},
		Secondary: []ConnectedAccount{
			{ID: "acc-2", Role: RoleSecondary},
		},
	}

	contexts := res.Contexts()
	require.Len(t, contexts, 3)
	assert.Equal(t, "work", contexts[0].CalendarID)
	assert.Equal(t, "family", contexts[1].CalendarID)
	assert.Equal(t, DefaultCalendarID, contexts[2].CalendarID)
	assert.True(t, contexts[2].Secondary())
}
