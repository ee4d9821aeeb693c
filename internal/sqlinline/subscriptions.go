package sqlinline

const QSelectSubscription = `--sql d296c28b-5386-4a47-b743-4da92b55b4bc
select user_id::text, plan_type, is_active, coalesce(stripe_customer_id, ''), coalesce(stripe_subscription_id, '')
from subscriptions
where user_id = $1::uuid
limit 1;
`

const QSelectSubscriptionByCustomer = `--sql 7b7c0de9-aa67-4a7c-ac0a-19b70214c10b
select user_id::text, plan_type, is_active, coalesce(stripe_customer_id, ''), coalesce(stripe_subscription_id, '')
from subscriptions
where stripe_customer_id = $1::text
limit 1;
`

const QUpsertSubscription = `--sql 641de3b2-faf8-4fcf-a9c7-e691eb6b010e
insert into subscriptions (user_id, plan_type, is_active, stripe_customer_id, stripe_subscription_id, updated_at)
values ($1::uuid, $2::text, $3::boolean, nullif($4::text, ''), nullif($5::text, ''), now())
on conflict (user_id) do update set
    plan_type = excluded.plan_type,
    is_active = excluded.is_active,
    stripe_customer_id = coalesce(excluded.stripe_customer_id, subscriptions.stripe_customer_id),
    stripe_subscription_id = coalesce(excluded.stripe_subscription_id, subscriptions.stripe_subscription_id),
    updated_at = now();
`
